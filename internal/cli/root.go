package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/nonibytes/docmap/internal/cli/commands"
	"github.com/nonibytes/docmap/internal/cliopt"
)

// Execute runs the CLI and returns an exit code.
func Execute(argv []string) int {
	globalFS := flag.NewFlagSet("docmap", flag.ContinueOnError)
	globalFS.SetOutput(os.Stderr)
	g := cliopt.DefaultGlobalOptions()
	cliopt.BindGlobalFlags(globalFS, &g)

	if err := globalFS.Parse(argv); err != nil {
		// flag package already printed the error
		return 2
	}

	args := globalFS.Args()
	if len(args) == 0 {
		PrintRootHelp(os.Stdout)
		return 0
	}

	verb := args[0]
	rest := args[1:]

	switch verb {
	case "--help", "-h", "help":
		PrintRootHelp(os.Stdout)
		return 0
	case "kv":
		return commands.RunKV(g, rest)
	case "import":
		return commands.RunImport(g, rest)
	case "export":
		return commands.RunExport(g, rest)
	case "search":
		return commands.RunSearch(g, rest)
	case "fields":
		return commands.RunFields(g, rest)
	case "values":
		return commands.RunValues(g, rest)
	case "stats":
		return commands.RunStats(g, rest)
	case "save":
		return commands.RunSave(g, rest)
	case "backup":
		return commands.RunBackup(g, rest)
	case "restore":
		return commands.RunRestore(g, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", verb)
		PrintRootHelp(os.Stderr)
		return 2
	}
}
