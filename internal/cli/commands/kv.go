package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/nonibytes/docmap/docmap/kvs"
	"github.com/nonibytes/docmap/internal/cliopt"
	"github.com/nonibytes/docmap/internal/cliutil"
)

// RunKV handles "kv put|get|del|list" on a string to string store.
func RunKV(g cliopt.GlobalOptions, argv []string) int {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "usage: docmap kv put|get|del|list -i <index> [key [value]]")
		return 2
	}
	sub := argv[0]
	fs := newFlagSet("kv " + sub)
	var indexName string
	bindIndex(fs, &indexName)
	if err := fs.Parse(argv[1:]); err != nil {
		return 2
	}
	if indexName == "" {
		return missing("--index")
	}
	args := fs.Args()

	ctx, cancel := commandContext()
	defer cancel()
	store, err := openKV(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer store.Close()

	switch sub {
	case "put":
		if len(args) != 2 {
			return missing("<key> <value>")
		}
		if err := store.Put(ctx, args[0], args[1]); err != nil {
			return cliutil.Fail(err)
		}
		return 0
	case "get":
		if len(args) != 1 {
			return missing("<key>")
		}
		v, ok, err := store.Get(ctx, args[0])
		if err != nil {
			return cliutil.Fail(err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "key %q not found\n", args[0])
			return 1
		}
		fmt.Fprintln(os.Stdout, v)
		return 0
	case "del":
		if len(args) != 1 {
			return missing("<key>")
		}
		_, ok, err := store.Remove(ctx, args[0])
		if err != nil {
			return cliutil.Fail(err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "key %q not found\n", args[0])
			return 1
		}
		return 0
	case "list":
		entries, err := store.Entries(ctx)
		if err != nil {
			return cliutil.Fail(err)
		}
		output(g, entries)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown kv command: %s\n", sub)
		return 2
	}
}

func openKV(ctx context.Context, g cliopt.GlobalOptions, indexName string) (*kvs.Store[string, string], error) {
	adapter, err := cliutil.Adapter(g, indexName)
	if err != nil {
		return nil, err
	}
	dbOpts, err := cliutil.DBOptions(g)
	if err != nil {
		return nil, err
	}
	opts := kvs.DefaultOptions()
	opts.Index = dbOpts.Index
	opts.Logger = dbOpts.Logger
	// One command per process, so the write must be visible before exit.
	opts.AsyncRefresh = false
	return kvs.NewString[string](ctx, adapter, opts)
}
