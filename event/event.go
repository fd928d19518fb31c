// Package event defines the read-only input an allow/drop decision is made
// about: an error's type, message, and stack, independent of any reporting
// SDK's own event shape.
package event

// Frame identifies one stack frame. Frames are ordered innermost first (most
// recent call at index 0). File and Line are informational only; grouping
// never depends on them because line numbers churn with every edit.
type Frame struct {
	Module   string
	Function string
	File     string
	Line     int
}

// Event is a borrowed view of a single error occurrence. Zero values are
// legal everywhere: an empty Event still produces a usable (fallback)
// grouping key downstream.
type Event struct {
	// Type is the error's type identity, e.g. "*fs.PathError".
	Type string

	// Message is the raw error message. Variable content (IDs, addresses,
	// counts) is tolerated here; normalization happens during grouping.
	Message string

	// Logger names the originating logger for events that carry no stack,
	// mirroring how log-integration events are grouped when exc_info is
	// unavailable.
	Logger string

	// Frames is the captured stack, innermost first. May be empty.
	Frames []Frame
}
