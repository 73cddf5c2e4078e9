package cli

import (
	"fmt"
	"io"
)

func PrintRootHelp(w io.Writer) {
	fmt.Fprintln(w, `docmap: document indexes for key/value maps and delimited text

USAGE
  docmap [global flags] <command> [args]

GLOBAL FLAGS
  --backend sqlite|postgres
  --sqlite-path <dir|file.db>
  --pg-dsn <dsn>
  --pg-schema <prefix>
  --analyzer ngram|word
  --log-level debug|info|warn|error
  --log-format text|json
  --format json|pretty

COMMANDS
  kv put|get|del|list -i <index> [key [value]]
  import  -i <index> [-f file] [--delim c] [--no-header] [--kinds k,...]
  export  -i <index> [-o file] [--delim c]
  search  -i <index> -q <query> [-n limit] [--page] [--cursor c]
  fields  -i <index>
  values  -i <index> --field <name> [--top n]
  stats   -i <index> [--field <name>]
  save    -i <index> -o <file>
  backup  -i <index> [--sink dir|minio|s3] [--compress zstd|lz4|none]
  restore --object <name> -o <file> [--sink dir|minio|s3]

QUERIES
  field:value  field:"a phrase"  field>10  field:1..5  a AND b  a OR b  NOT a  *:*
  A bare value searches column "0".`)
}
