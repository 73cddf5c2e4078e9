package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/index"
	"github.com/nonibytes/docmap/docmap/storage"
	"github.com/nonibytes/docmap/docmap/storage/postgres"
	"github.com/nonibytes/docmap/docmap/storage/sqlite"
	"github.com/nonibytes/docmap/internal/cliopt"
)

type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatJSON   OutputFormat = "json"
)

func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatPretty, FormatJSON:
		return OutputFormat(s)
	default:
		return FormatJSON
	}
}

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// PrintPretty writes records and discovery results as aligned columns and
// anything else with %+v.
func PrintPretty(w io.Writer, v any) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	switch x := v.(type) {
	case []docmap.Record:
		printRecords(tw, x)
	case docmap.SearchPage[docmap.Record]:
		printRecords(tw, x.Items)
		if x.HasMore {
			fmt.Fprintf(tw, "next cursor:\t%s\n", x.NextCursor)
		}
	case []index.FieldOverview:
		fmt.Fprintln(tw, "FIELD\tKIND\tDOCS\tMULTI")
		for _, f := range x {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", f.Field, f.Kind, f.DocCount, f.Multi)
		}
	case []index.ValueCount:
		for _, c := range x {
			fmt.Fprintf(tw, "%s\t%d\n", c.Value, c.Count)
		}
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%s\n", k, x[k])
		}
	default:
		fmt.Fprintf(tw, "%+v\n", v)
	}
}

func printRecords(w io.Writer, recs []docmap.Record) {
	for _, r := range recs {
		fmt.Fprintf(w, "%d\t%s\n", r.ID, strings.Join(r.Values, "\t"))
	}
}

// ResolveIndexRef transforms the user-provided -i/--index value into a backend-specific reference.
func ResolveIndexRef(g cliopt.GlobalOptions, index string) string {
	switch strings.ToLower(g.Backend) {
	case "sqlite":
		if strings.Contains(index, string(filepath.Separator)) || strings.HasSuffix(index, ".db") {
			return index
		}
		return filepath.Join(g.SQLitePath, index+".db")
	case "postgres":
		if g.PostgresSchema == "" {
			return index
		}
		return g.PostgresSchema + "_" + index
	default:
		return index
	}
}

// Adapter builds the storage adapter for the named index.
func Adapter(g cliopt.GlobalOptions, index string) (storage.Adapter, error) {
	ref := ResolveIndexRef(g, index)
	switch strings.ToLower(g.Backend) {
	case "sqlite":
		return sqlite.New(ref), nil
	case "postgres":
		if g.PostgresDSN == "" {
			return nil, docmap.ConfigError("pg-dsn", "required for the postgres backend")
		}
		return postgres.New(g.PostgresDSN, ref), nil
	default:
		return nil, docmap.ConfigError("backend", fmt.Sprintf("unknown backend %q", g.Backend))
	}
}

// Logger builds the logger selected by --log-level and --log-format. Logs go
// to stderr so that stdout stays parseable.
func Logger(g cliopt.GlobalOptions) (*docmap.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		return nil, docmap.ConfigError("log-level", err.Error())
	}
	switch g.LogFormat {
	case "", "text":
		return docmap.NewTextLogger(level), nil
	case "json":
		return docmap.NewJSONLogger(level), nil
	default:
		return nil, docmap.ConfigError("log-format", fmt.Sprintf("unknown log format %q", g.LogFormat))
	}
}

// IndexOptions maps the global flags onto index.Options.
func IndexOptions(g cliopt.GlobalOptions) (index.Options, error) {
	opts := index.DefaultOptions()
	analyzer, err := storage.ParseAnalyzer(g.Analyzer)
	if err != nil {
		return opts, docmap.ConfigError("analyzer", err.Error())
	}
	opts.Analyzer = analyzer
	return opts, nil
}

// DBOptions combines IndexOptions and Logger.
func DBOptions(g cliopt.GlobalOptions) (docmap.DBOptions, error) {
	opts := docmap.DefaultDBOptions()
	var err error
	if opts.Index, err = IndexOptions(g); err != nil {
		return opts, err
	}
	if opts.Logger, err = Logger(g); err != nil {
		return opts, err
	}
	opts.Index.Logger = opts.Logger.Logger
	return opts, nil
}

// Fail prints err and returns the exit code for it: 2 for usage errors, 1
// otherwise.
func Fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	if docmap.IsKind(err, docmap.ErrConfig) || docmap.IsKind(err, docmap.ErrParse) {
		return 2
	}
	return 1
}
