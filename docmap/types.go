package docmap

import (
	"github.com/nonibytes/docmap/docmap/index"
	"github.com/nonibytes/docmap/docmap/tabular"
)

// CodecOptions controls how absent fields are decoded.
type CodecOptions struct {
	// InitializeEmptyObject allocates pointer-to-struct fields even when
	// no field below them is stored.
	InitializeEmptyObject bool
	// InitializeEmptyMultiples sets empty slices, maps and byte slices
	// instead of leaving them nil when no value is stored.
	InitializeEmptyMultiples bool
}

func DefaultCodecOptions() CodecOptions {
	return CodecOptions{}
}

// DBOptions configures ObjectDB and ValuesDB.
type DBOptions struct {
	Index  index.Options
	Codec  CodecOptions
	Logger *Logger
}

func DefaultDBOptions() DBOptions {
	return DBOptions{
		Index: index.DefaultOptions(),
		Codec: DefaultCodecOptions(),
	}
}

// ImportOptions configures ValuesDB.Import.
type ImportOptions struct {
	// Parser splits lines into columns.
	Parser tabular.Parser
	// Header takes column names from the first line; otherwise columns are
	// named "0", "1", ...
	Header bool
	// Creator builds documents from columns. Nil means auto detection.
	Creator tabular.Creator
	// RowsPerSecond throttles the import when positive.
	RowsPerSecond float64
	// OnError is called for every skipped line. Returning a non-nil error
	// aborts the import.
	OnError func(line int, err error) error
	// CommitEvery commits after that many imported rows when positive.
	CommitEvery int
}

func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		Parser: tabular.DefaultParser(),
		Header: true,
	}
}

// SearchOptions configures paged searches.
type SearchOptions struct {
	Limit  int
	Cursor string
}

// SearchPage is a page of decoded search results.
type SearchPage[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}
