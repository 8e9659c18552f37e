package models

// SnapshotSender sends snapshots to a connected viewer.
type SnapshotSender interface {
	SendSnapshot(v any)
}

// A client watching a world.
type Viewer struct {
	ID     string
	Sender SnapshotSender
}
