package featureflag

type Flag string

const (
	// Loads the spawned agents in one pass when the index supports it.
	FlagBulkLoad Flag = "BULK_LOAD"

	// Skips the neighbour queries of the simulation steps.
	FlagDisableQueries Flag = "DISABLE_QUERIES"

	// Keeps the nodes and the agents out of the snapshots.
	FlagDisableSnapshots Flag = "DISABLE_SNAPSHOTS"
)

// Flags returns the known flags.
func Flags() []Flag {
	return []Flag{
		FlagBulkLoad,
		FlagDisableQueries,
		FlagDisableSnapshots,
	}
}
