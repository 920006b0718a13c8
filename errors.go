package excelts

import "fmt"

// LimitError reports a configured resource guard that streaming tripped
// over. The message names the limit so the caller can tell which option to
// raise.
type LimitError struct {
	Kind  string // "row" or "column"
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Max %s count (%d) exceeded", e.Kind, e.Limit)
}

// UnresolvedRefError records a value-level defect: markup referenced a table
// entry that does not exist. It is attached to the affected cell rather than
// aborting the read.
type UnresolvedRefError struct {
	Ref  string // address of the affected cell
	Kind string // "shared string", "shared formula" or "relationship"
	ID   string // the dangling index or id
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("cell %s: unresolved %s %s", e.Ref, e.Kind, e.ID)
}
