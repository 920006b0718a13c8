package excelts

// TableMode selects how a cross-reference table part is handled while
// reading.
type TableMode int

const (
	// TableCache parses the part up front and resolves references against
	// it. This is the default.
	TableCache TableMode = iota
	// TableIgnore skips the part entirely; cell references to it stay raw.
	TableIgnore
)

// HyperlinkMode selects how worksheet hyperlinks are delivered.
type HyperlinkMode int

const (
	// HyperlinksNone skips hyperlink markup. This is the default.
	HyperlinksNone HyperlinkMode = iota
	// HyperlinksEmit delivers hyperlinks as events after the sheet's rows.
	HyperlinksEmit
	// HyperlinksCache collects hyperlinks for retrieval through
	// WorkbookReader.Hyperlinks once the sheet has finished.
	HyperlinksCache
)

type readerOptions struct {
	maxRows       int
	maxCols       int
	ignoreNodes   map[string]bool
	hyperlinks    HyperlinkMode
	sharedStrings TableMode
	styles        TableMode
}

func defaultReaderOptions() *readerOptions {
	return &readerOptions{}
}

// ReaderOption configures a WorkbookReader.
type ReaderOption func(*readerOptions)

// WithMaxRows caps how many rows a single worksheet may deliver before the
// read fails. Zero means unlimited.
func WithMaxRows(n int) ReaderOption {
	return func(o *readerOptions) { o.maxRows = n }
}

// WithMaxCols caps how many cells a single row may hold before the read
// fails. Zero means unlimited.
func WithMaxCols(n int) ReaderOption {
	return func(o *readerOptions) { o.maxCols = n }
}

// WithIgnoreNodes names worksheet sections to skip without parsing, such as
// "mergeCells" or "dataValidations".
func WithIgnoreNodes(names ...string) ReaderOption {
	return func(o *readerOptions) {
		if o.ignoreNodes == nil {
			o.ignoreNodes = make(map[string]bool, len(names))
		}
		for _, n := range names {
			o.ignoreNodes[n] = true
		}
	}
}

// WithHyperlinks sets how hyperlinks are delivered (default: skipped).
func WithHyperlinks(mode HyperlinkMode) ReaderOption {
	return func(o *readerOptions) { o.hyperlinks = mode }
}

// WithSharedStrings sets how the shared-string table is handled (default:
// parsed and cached).
func WithSharedStrings(mode TableMode) ReaderOption {
	return func(o *readerOptions) { o.sharedStrings = mode }
}

// WithStyles sets how the style table is handled (default: parsed and
// cached).
func WithStyles(mode TableMode) ReaderOption {
	return func(o *readerOptions) { o.styles = mode }
}

type writerOptions struct {
	useSharedStrings bool
	useStyles        bool
	date1904         bool
}

func defaultWriterOptions() *writerOptions {
	return &writerOptions{}
}

// WriterOption configures a WorkbookWriter.
type WriterOption func(*writerOptions)

// WithSharedStringsTable makes the writer intern string cells into a shared
// table instead of writing them inline (default: inline).
func WithSharedStringsTable(use bool) WriterOption {
	return func(o *writerOptions) { o.useSharedStrings = use }
}

// WithStyleTable makes the writer emit a style part and attach format
// records to styled cells (default: no style part).
func WithStyleTable(use bool) WriterOption {
	return func(o *writerOptions) { o.useStyles = use }
}

// WithDate1904 makes the workbook use the 1904 date system for serial
// conversion (default: 1900 system).
func WithDate1904(use bool) WriterOption {
	return func(o *writerOptions) { o.date1904 = use }
}
