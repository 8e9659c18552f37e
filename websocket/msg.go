package websocket

import (
	"time"

	"github.com/aukilabs/hagall-spatial/simulation"
)

const (
	ErrTypeMsgDecode = "websocket_msg_decode"
	ErrTypeMsgEncode = "websocket_msg_encode"
	ErrTypeMsgSkip   = "websocket_msg_skip"
)

// Message types.
const (
	MsgTypePing            = "ping"
	MsgTypePong            = "pong"
	MsgTypeSnapshotRequest = "snapshot_request"
	MsgTypeSnapshot        = "snapshot"
)

// Msg is a message exchanged with a viewer.
type Msg struct {
	Type      string               `json:"type"`
	RequestID uint32               `json:"request_id,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	ClientID  string               `json:"client_id,omitempty"`
	Snapshot  *simulation.Snapshot `json:"snapshot,omitempty"`
}

// Receiver reads the next message from a connection. It returns the number
// of bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a message to a connection. It returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to a viewer.
type ResponseSender interface {
	Send(Msg)
}
