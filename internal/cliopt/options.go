package cliopt

import "flag"

// GlobalOptions are parsed once at the CLI root and passed to subcommands.
//
// NOTE: This is a separate package to avoid import cycles between the root
// command router and per-command code.
type GlobalOptions struct {
	Backend        string
	SQLitePath     string
	PostgresDSN    string
	PostgresSchema string
	Analyzer       string

	LogLevel  string
	LogFormat string
	Format    string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Backend:        "sqlite",
		SQLitePath:     ".",
		PostgresSchema: "docmap",
		Analyzer:       "ngram",
		LogLevel:       "warn",
		LogFormat:      "text",
		Format:         "json",
	}
}

func BindGlobalFlags(fs *flag.FlagSet, g *GlobalOptions) {
	fs.StringVar(&g.Backend, "backend", g.Backend, "backend: sqlite|postgres")

	fs.StringVar(&g.SQLitePath, "sqlite-path", g.SQLitePath, "sqlite directory or explicit .db file path")

	fs.StringVar(&g.PostgresDSN, "pg-dsn", g.PostgresDSN, "postgres DSN")
	fs.StringVar(&g.PostgresSchema, "pg-schema", g.PostgresSchema, "postgres schema prefix; the index name is appended")

	fs.StringVar(&g.Analyzer, "analyzer", g.Analyzer, "phrase analyzer for new indexes: ngram|word")

	fs.StringVar(&g.LogLevel, "log-level", g.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&g.LogFormat, "log-format", g.LogFormat, "log format: text|json")
	fs.StringVar(&g.Format, "format", g.Format, "output format: json|pretty")
}
