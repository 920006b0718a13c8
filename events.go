package excelts

// EventKind identifies what a reader event carries.
type EventKind int

const (
	// EventWorksheet announces the next worksheet. Everything that follows
	// until the next worksheet event belongs to it.
	EventWorksheet EventKind = iota + 1
	// EventRow delivers one row in document order.
	EventRow
	// EventHyperlink delivers one hyperlink after the owning sheet's rows,
	// when hyperlink emission is enabled.
	EventHyperlink
	// EventFinished is delivered exactly once, after the last worksheet. A
	// read that fails never produces it.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventWorksheet:
		return "worksheet"
	case EventRow:
		return "row"
	case EventHyperlink:
		return "hyperlink"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is one step of a workbook read. Sheet is set on every event except
// the final finished one; Row and Hyperlink are set according to Kind.
type Event struct {
	Kind      EventKind
	Sheet     *SheetInfo
	Row       *Row
	Hyperlink *Hyperlink
}
