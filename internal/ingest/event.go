package ingest

import "time"

// Op classifies a spool file event.
type Op int

const (
	// OpCreate indicates a new record file appeared.
	OpCreate Op = iota
	// OpModify indicates an existing record file changed.
	OpModify
	// OpDelete indicates a record file was removed.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a debounced file event from the spool directory.
type Event struct {
	// Path is the absolute path of the record file.
	Path string

	// Op is the coalesced operation.
	Op Op

	// Timestamp is when the last raw event for this path was seen.
	Timestamp time.Time
}
