package docmap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/index"
	"github.com/nonibytes/docmap/docmap/query"
	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/tabular"
)

const metaColumns = "values_columns"

// Column is one column of a table stored in a ValuesDB.
type Column struct {
	Name string
	Kind document.Kind
}

// Record is a stored row. Values follow the column order.
type Record struct {
	ID     int64
	Values []string
}

// ImportResult summarizes an import.
type ImportResult struct {
	Rows    int
	Skipped int
}

// ValuesDB stores rows of delimited text, one document per row, and
// searches them by column.
type ValuesDB struct {
	store *index.Store
	log   *Logger

	mu      sync.RWMutex
	columns []Column
	header  bool
}

type columnsJSON struct {
	Header  bool         `json:"header"`
	Columns []columnJSON `json:"columns"`
}

type columnJSON struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// OpenValuesDB opens an index through adapter and loads the column layout
// of a previous import, if any.
func OpenValuesDB(ctx context.Context, adapter storage.Adapter, opts DBOptions) (*ValuesDB, error) {
	log, iopts := valuesOptions(opts)
	store, err := index.Open(ctx, adapter, iopts)
	if err != nil {
		return nil, StoreError("open index", err)
	}
	return newValuesDB(ctx, store, log)
}

// OpenTempValuesDB opens a ValuesDB on an ephemeral index.
func OpenTempValuesDB(ctx context.Context, opts DBOptions) (*ValuesDB, error) {
	log, iopts := valuesOptions(opts)
	store, err := index.OpenTemp(ctx, iopts)
	if err != nil {
		return nil, StoreError("open index", err)
	}
	return newValuesDB(ctx, store, log)
}

func valuesOptions(opts DBOptions) (*Logger, index.Options) {
	log := defaultLogger(opts.Logger).WithType("values")
	iopts := opts.Index
	if iopts.Logger == nil {
		iopts.Logger = log.Logger
	}
	return log, iopts
}

func newValuesDB(ctx context.Context, store *index.Store, log *Logger) (*ValuesDB, error) {
	db := &ValuesDB{store: store, log: log}
	raw, ok, err := store.Meta(ctx, metaColumns)
	if err != nil {
		_ = store.Close()
		return nil, StoreError("read columns", err)
	}
	if ok {
		if err := db.decodeColumns(raw); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return db, nil
}

func (db *ValuesDB) decodeColumns(raw string) error {
	var cj columnsJSON
	if err := json.Unmarshal([]byte(raw), &cj); err != nil {
		return Wrap(ErrIO, "decode columns", err)
	}
	cols := make([]Column, len(cj.Columns))
	for i, c := range cj.Columns {
		k, err := document.ParseKind(c.Kind)
		if err != nil {
			return Wrap(ErrIO, "decode columns", err)
		}
		cols[i] = Column{Name: c.Name, Kind: k}
	}
	db.columns, db.header = cols, cj.Header
	return nil
}

func (db *ValuesDB) encodeColumns() (string, error) {
	cj := columnsJSON{Header: db.header, Columns: make([]columnJSON, len(db.columns))}
	for i, c := range db.columns {
		cj.Columns[i] = columnJSON{Name: c.Name, Kind: c.Kind.String()}
	}
	b, err := json.Marshal(cj)
	return string(b), err
}

// Store exposes the underlying index.
func (db *ValuesDB) Store() *index.Store { return db.store }

// Columns returns the column layout, empty before the first import.
func (db *ValuesDB) Columns() []Column {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]Column(nil), db.columns...)
}

func (db *ValuesDB) resolver() query.Resolver {
	db.mu.RLock()
	defer db.mu.RUnlock()
	kinds := make(map[string]document.Kind, len(db.columns))
	for _, c := range db.columns {
		kinds[c.Name] = c.Kind
	}
	return query.KindsResolver(kinds)
}

// Import reads rows from r and adds one document per row. The first row
// of an empty database fixes the column layout; later imports reuse it.
// Rows that fail to parse or convert are passed to opts.OnError and
// skipped; the import stops when OnError returns an error or the store
// fails. Rows written before a failure stay written.
func (db *ValuesDB) Import(ctx context.Context, r io.Reader, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	creator := opts.Creator
	if creator == nil {
		creator = tabular.AutoDetect{}
	}
	if opts.Parser.Delimiter == 0 {
		opts.Parser = tabular.DefaultParser()
	}
	var limiter *rate.Limiter
	if opts.RowsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RowsPerSecond), 1)
	}
	if db.store.NumDocs() > 0 {
		db.log.WarnContext(ctx, "importing into a non-empty index", "documents", db.store.NumDocs())
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	names := columnNames(db.columns)
	kinds := columnKinds(db.columns)
	needHeader := opts.Header
	layoutChanged := false

	skip := func(line int, err error) error {
		res.Skipped++
		if opts.OnError != nil {
			if abort := opts.OnError(line, err); abort != nil {
				return abort
			}
		}
		db.log.LogSkipped(ctx, "import", line, err)
		return nil
	}

	br := bufio.NewReader(r)
	for line := 1; ; line++ {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return res, Wrap(ErrIO, "read input", readErr)
		}
		raw = strings.TrimRight(raw, "\r\n")
		if raw == "" {
			if readErr != nil {
				break
			}
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return res, Wrap(ErrIO, "import throttle", err)
			}
		}

		fields, err := opts.Parser.Parse(raw)
		if err != nil {
			var pe *tabular.ParseError
			if errors.As(err, &pe) {
				pe.Line = line
			}
			if needHeader {
				return res, ParseError("parse header", err)
			}
			if abort := skip(line, ParseError("parse row", err)); abort != nil {
				return res, abort
			}
		} else if needHeader {
			needHeader = false
			if names == nil {
				names = creator.Names(fields, len(fields))
			}
		} else {
			if kinds == nil {
				if names == nil {
					names = creator.Names(nil, len(fields))
				}
				if kinds, err = creator.Kinds(fields); err != nil {
					return res, ConfigError("", err.Error())
				}
				if len(names) != len(kinds) {
					return res, ConfigError("", fmt.Sprintf("%d column names for %d columns", len(names), len(kinds)))
				}
				db.columns = makeColumns(names, kinds)
				db.header = opts.Header
				layoutChanged = true
			}
			doc, err := tabular.Row(names, kinds, fields)
			if err != nil {
				if abort := skip(line, Wrap(ErrParse, fmt.Sprintf("line %d", line), err)); abort != nil {
					return res, abort
				}
			} else {
				if err := db.store.Add(ctx, doc); err != nil {
					return res, StoreError("add row", err)
				}
				res.Rows++
				if opts.CommitEvery > 0 && res.Rows%opts.CommitEvery == 0 {
					if err := db.commitLocked(ctx, layoutChanged); err != nil {
						return res, err
					}
					layoutChanged = false
				}
			}
		}
		if readErr != nil {
			break
		}
	}
	db.log.LogBatch(ctx, "import", res.Rows+res.Skipped, res.Skipped)
	return res, db.commitLocked(ctx, layoutChanged)
}

func (db *ValuesDB) commitLocked(ctx context.Context, saveLayout bool) error {
	if saveLayout {
		raw, err := db.encodeColumns()
		if err != nil {
			return Wrap(ErrIO, "encode columns", err)
		}
		if err := db.store.SetMeta(ctx, metaColumns, raw); err != nil {
			return StoreError("save columns", err)
		}
	}
	return StoreError("commit", db.store.Commit(ctx))
}

func makeColumns(names []string, kinds []document.Kind) []Column {
	cols := make([]Column, len(names))
	for i := range names {
		cols[i] = Column{Name: names[i], Kind: kinds[i]}
	}
	return cols
}

func columnNames(cols []Column) []string {
	if len(cols) == 0 {
		return nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func columnKinds(cols []Column) []document.Kind {
	if len(cols) == 0 {
		return nil
	}
	kinds := make([]document.Kind, len(cols))
	for i, c := range cols {
		kinds[i] = c.Kind
	}
	return kinds
}

// Export writes every row in index order, preceded by the column names
// when the data was imported with a header.
func (db *ValuesDB) Export(ctx context.Context, w io.Writer, p tabular.Parser) (int, error) {
	cols := db.Columns()
	db.mu.RLock()
	header := db.header
	db.mu.RUnlock()

	bw := bufio.NewWriter(w)
	if header {
		if _, err := fmt.Fprintln(bw, p.Write(columnNames(cols))); err != nil {
			return 0, Wrap(ErrIO, "write header", err)
		}
	}
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return 0, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)

	n := 0
	for hit, err := range db.store.All(ctx, snap) {
		if err != nil {
			return n, StoreError("iterate", err)
		}
		if _, err := fmt.Fprintln(bw, p.Write(recordValues(cols, hit.Document))); err != nil {
			return n, Wrap(ErrIO, "write row", err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, Wrap(ErrIO, "flush", err)
	}
	return n, nil
}

func recordValues(cols []Column, doc document.Document) []string {
	values := make([]string, len(cols))
	for i, c := range cols {
		if f, ok := doc.Get(c.Name); ok {
			values[i] = f.String()
		}
	}
	return values
}

// Parse parses a query string against the column layout. Bare values
// search column DefaultField.
func (db *ValuesDB) Parse(q string) (query.Query, error) {
	parsed, err := query.NewParser(DefaultField, db.resolver()).Parse(q)
	if err != nil {
		return nil, ParseError("parse query", err)
	}
	return parsed, nil
}

// Search finds rows whose column field holds value: exact for keywords,
// the closed range [value, value] for numbers and a phrase for text.
func (db *ValuesDB) Search(ctx context.Context, field, value string, n int) ([]Record, error) {
	q, err := query.NewParser(DefaultField, db.resolver()).Field(field, value)
	if err != nil {
		return nil, ParseError("build query", err)
	}
	return db.Query(ctx, q, n)
}

// ExactSearch is Search, except that text columns must equal value as a
// whole rather than contain it.
func (db *ValuesDB) ExactSearch(ctx context.Context, field, value string, n int) ([]Record, error) {
	resolve := db.resolver()
	kind, _ := resolve(field)
	if kind != document.Text {
		return db.Search(ctx, field, value, n)
	}
	q, err := query.NewParser(DefaultField, resolve).Field(field, value)
	if err != nil {
		return nil, ParseError("build query", err)
	}
	recs, err := db.Query(ctx, q, 0)
	if err != nil {
		return nil, err
	}
	col := db.columnIndex(field)
	out := recs[:0]
	for _, r := range recs {
		if r.Values[col] == value {
			out = append(out, r)
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out, nil
}

func (db *ValuesDB) columnIndex(name string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for i, c := range db.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Query returns up to n rows matching q in index order.
func (db *ValuesDB) Query(ctx context.Context, q query.Query, n int) ([]Record, error) {
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return nil, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	hits, err := db.store.Search(ctx, snap, q, n)
	if err != nil {
		return nil, StoreError("search", err)
	}
	return db.records(hits), nil
}

// QueryPage returns one page of rows matching q.
func (db *ValuesDB) QueryPage(ctx context.Context, q query.Query, opts SearchOptions) (SearchPage[Record], error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return SearchPage[Record]{}, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	page, err := db.store.SearchPage(ctx, snap, q, opts.Limit, opts.Cursor)
	if err != nil {
		return SearchPage[Record]{}, pageError(err)
	}
	return SearchPage[Record]{
		Items:      db.records(page.Hits),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}

func (db *ValuesDB) records(hits []index.Hit) []Record {
	cols := db.Columns()
	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = Record{ID: h.ID, Values: recordValues(cols, h.Document)}
	}
	return out
}

// Fields summarizes the stored columns.
func (db *ValuesDB) Fields(ctx context.Context) ([]index.FieldOverview, error) {
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return nil, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	out, err := db.store.Fields(ctx, snap)
	return out, StoreError("fields", err)
}

// Values returns the top most frequent values of a keyword or text column.
func (db *ValuesDB) Values(ctx context.Context, field string, top int) ([]index.ValueCount, error) {
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return nil, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	out, err := db.store.Values(ctx, snap, field, top)
	return out, StoreError("values", err)
}

// Stats summarizes a numeric column.
func (db *ValuesDB) Stats(ctx context.Context, field string) (index.StatsResult, error) {
	snap, err := db.store.Snapshots().Acquire()
	if err != nil {
		return index.StatsResult{}, StoreError("acquire snapshot", err)
	}
	defer db.store.Snapshots().Release(snap)
	out, err := db.store.Stats(ctx, snap, field)
	return out, StoreError("stats", err)
}

// Save writes a consistent copy of the committed index to dest.
func (db *ValuesDB) Save(ctx context.Context, dest string) error {
	return StoreError("save", db.store.Save(ctx, dest))
}

func (db *ValuesDB) Close() error {
	return StoreError("close", db.store.Close())
}
