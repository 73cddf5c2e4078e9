package commands

import (
	"github.com/nonibytes/docmap/internal/cliopt"
	"github.com/nonibytes/docmap/internal/cliutil"
)

func RunFields(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("fields")
	var indexName string
	bindIndex(fs, &indexName)
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" {
		return missing("--index")
	}
	ctx, cancel := commandContext()
	defer cancel()
	db, err := openValues(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer db.Close()
	fields, err := db.Fields(ctx)
	if err != nil {
		return cliutil.Fail(err)
	}
	output(g, fields)
	return 0
}

func RunValues(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("values")
	var indexName, field string
	var top int
	bindIndex(fs, &indexName)
	fs.StringVar(&field, "field", "", "field")
	fs.IntVar(&top, "top", 20, "number of values")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" || field == "" {
		return missing("--index", "--field")
	}
	ctx, cancel := commandContext()
	defer cancel()
	db, err := openValues(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer db.Close()
	values, err := db.Values(ctx, field, top)
	if err != nil {
		return cliutil.Fail(err)
	}
	output(g, values)
	return 0
}

func RunStats(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("stats")
	var indexName, field string
	bindIndex(fs, &indexName)
	fs.StringVar(&field, "field", "", "numeric field; empty for index totals")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" {
		return missing("--index")
	}
	ctx, cancel := commandContext()
	defer cancel()
	if field == "" {
		store, err := openIndex(ctx, g, indexName)
		if err != nil {
			return cliutil.Fail(err)
		}
		defer store.Close()
		output(g, map[string]any{
			"location":   store.Location(),
			"analyzer":   store.Analyzer(),
			"documents":  store.NumDocs(),
			"generation": store.Generation(),
		})
		return 0
	}
	db, err := openValues(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer db.Close()
	stats, err := db.Stats(ctx, field)
	if err != nil {
		return cliutil.Fail(err)
	}
	output(g, stats)
	return 0
}
