package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"unicode/utf8"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/index"
	"github.com/nonibytes/docmap/docmap/tabular"
	"github.com/nonibytes/docmap/internal/cliopt"
	"github.com/nonibytes/docmap/internal/cliutil"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func bindIndex(fs *flag.FlagSet, indexName *string) {
	fs.StringVar(indexName, "index", "", "index")
	fs.StringVar(indexName, "i", "", "index")
}

// commandContext is cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func openValues(ctx context.Context, g cliopt.GlobalOptions, indexName string) (*docmap.ValuesDB, error) {
	adapter, err := cliutil.Adapter(g, indexName)
	if err != nil {
		return nil, err
	}
	opts, err := cliutil.DBOptions(g)
	if err != nil {
		return nil, err
	}
	return docmap.OpenValuesDB(ctx, adapter, opts)
}

func openIndex(ctx context.Context, g cliopt.GlobalOptions, indexName string) (*index.Store, error) {
	adapter, err := cliutil.Adapter(g, indexName)
	if err != nil {
		return nil, err
	}
	opts, err := cliutil.DBOptions(g)
	if err != nil {
		return nil, err
	}
	store, err := index.Open(ctx, adapter, opts.Index)
	if err != nil {
		return nil, docmap.StoreError("open index", err)
	}
	return store, nil
}

// parser builds a tabular.Parser from a delimiter flag. "tab" and "\t"
// both name the tab character.
func parser(delim string, lenient bool) (tabular.Parser, error) {
	switch delim {
	case "", "tab", `\t`:
		delim = "\t"
	case "comma":
		delim = ","
	}
	if utf8.RuneCountInString(delim) != 1 {
		return tabular.Parser{}, docmap.ConfigError("delim", fmt.Sprintf("expected a single character, got %q", delim))
	}
	r, _ := utf8.DecodeRuneInString(delim)
	p := tabular.NewParser(r)
	p.Strict = !lenient
	return p, nil
}

func output(g cliopt.GlobalOptions, v any) {
	switch cliutil.ParseOutputFormat(g.Format) {
	case cliutil.FormatPretty:
		cliutil.PrintPretty(os.Stdout, v)
	default:
		cliutil.PrintJSON(os.Stdout, v)
	}
}

func missing(names ...string) int {
	fmt.Fprintf(os.Stderr, "missing %s\n", strings.Join(names, " or "))
	return 2
}
