package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/document"
	"github.com/nonibytes/docmap/docmap/tabular"
	"github.com/nonibytes/docmap/internal/cliopt"
	"github.com/nonibytes/docmap/internal/cliutil"
)

func RunImport(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("import")
	var indexName, file, delim, kinds, names string
	var noHeader, lenient, standard bool
	var rowsPerSec float64
	var commitEvery int
	bindIndex(fs, &indexName)
	fs.StringVar(&file, "file", "-", "input file, - for stdin")
	fs.StringVar(&file, "f", "-", "input file, - for stdin")
	fs.StringVar(&delim, "delim", "tab", "column delimiter")
	fs.BoolVar(&noHeader, "no-header", false, "first line is data; columns are named 0, 1, ...")
	fs.BoolVar(&lenient, "lenient", false, "accept malformed quoting")
	fs.StringVar(&kinds, "kinds", "", "comma separated column kinds (double,float,int,long,stored,keyword,text)")
	fs.StringVar(&names, "names", "", "comma separated column names, overriding the header")
	fs.BoolVar(&standard, "all-text", false, "index every column as text")
	fs.Float64Var(&rowsPerSec, "rate", 0, "maximum rows per second, 0 for unlimited")
	fs.IntVar(&commitEvery, "commit-every", 0, "commit after this many rows")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" {
		return missing("--index")
	}

	p, err := parser(delim, lenient)
	if err != nil {
		return cliutil.Fail(err)
	}
	opts := docmap.DefaultImportOptions()
	opts.Parser = p
	opts.Header = !noHeader
	opts.RowsPerSecond = rowsPerSec
	opts.CommitEvery = commitEvery
	opts.OnError = func(line int, err error) error {
		fmt.Fprintf(os.Stderr, "line %d: %v\n", line, err)
		return nil
	}
	switch {
	case kinds != "":
		creator := tabular.UserDefined{}
		for _, k := range strings.Split(kinds, ",") {
			kind, err := document.ParseKind(strings.TrimSpace(k))
			if err != nil {
				return cliutil.Fail(docmap.ConfigError("kinds", err.Error()))
			}
			creator.ColumnKinds = append(creator.ColumnKinds, kind)
		}
		if names != "" {
			creator.ColumnNames = strings.Split(names, ",")
		}
		opts.Creator = creator
	case names != "":
		return cliutil.Fail(docmap.ConfigError("names", "requires --kinds"))
	case standard:
		opts.Creator = tabular.Standard{}
	}

	in := io.Reader(os.Stdin)
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return cliutil.Fail(err)
		}
		defer f.Close()
		in = f
	}

	ctx, cancel := commandContext()
	defer cancel()
	db, err := openValues(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer db.Close()
	res, err := db.Import(ctx, bufio.NewReader(in), opts)
	output(g, res)
	if err != nil {
		return cliutil.Fail(err)
	}
	return 0
}

func RunExport(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("export")
	var indexName, out, delim string
	bindIndex(fs, &indexName)
	fs.StringVar(&out, "out", "-", "output file, - for stdout")
	fs.StringVar(&out, "o", "-", "output file, - for stdout")
	fs.StringVar(&delim, "delim", "tab", "column delimiter")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" {
		return missing("--index")
	}
	p, err := parser(delim, false)
	if err != nil {
		return cliutil.Fail(err)
	}

	ctx, cancel := commandContext()
	defer cancel()
	db, err := openValues(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer db.Close()

	w := io.Writer(os.Stdout)
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return cliutil.Fail(err)
		}
		defer f.Close()
		w = f
	}
	n, err := db.Export(ctx, w, p)
	if err != nil {
		return cliutil.Fail(err)
	}
	fmt.Fprintf(os.Stderr, "exported %d rows\n", n)
	return 0
}

func RunSearch(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("search")
	var indexName, q, cursor string
	var limit int
	var page bool
	bindIndex(fs, &indexName)
	fs.StringVar(&q, "query", "", "query")
	fs.StringVar(&q, "q", "", "query")
	fs.IntVar(&limit, "limit", docmap.DefaultSearchLimit, "maximum number of rows")
	fs.IntVar(&limit, "n", docmap.DefaultSearchLimit, "maximum number of rows")
	fs.StringVar(&cursor, "cursor", "", "continue after a previous page")
	fs.BoolVar(&page, "page", false, "return a page with a continuation cursor")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" || q == "" {
		return missing("--index", "--query")
	}

	ctx, cancel := commandContext()
	defer cancel()
	db, err := openValues(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer db.Close()
	parsed, err := db.Parse(q)
	if err != nil {
		return cliutil.Fail(err)
	}
	if page || cursor != "" {
		res, err := db.QueryPage(ctx, parsed, docmap.SearchOptions{Limit: limit, Cursor: cursor})
		if err != nil {
			return cliutil.Fail(err)
		}
		output(g, res)
		return 0
	}
	recs, err := db.Query(ctx, parsed, limit)
	if err != nil {
		return cliutil.Fail(err)
	}
	output(g, recs)
	return 0
}
