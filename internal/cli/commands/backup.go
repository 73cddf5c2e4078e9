package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nonibytes/docmap/docmap"
	"github.com/nonibytes/docmap/docmap/backup"
	"github.com/nonibytes/docmap/internal/cliopt"
	"github.com/nonibytes/docmap/internal/cliutil"
)

type sinkFlags struct {
	kind      string
	dir       string
	bucket    string
	prefix    string
	endpoint  string
	accessKey string
	secretKey string
	secure    bool
}

func bindSink(fs *flag.FlagSet, s *sinkFlags) {
	fs.StringVar(&s.kind, "sink", "dir", "backup target: dir|minio|s3")
	fs.StringVar(&s.dir, "dir", "backups", "directory for --sink dir")
	fs.StringVar(&s.bucket, "bucket", "", "bucket for --sink minio|s3")
	fs.StringVar(&s.prefix, "prefix", "", "object name prefix")
	fs.StringVar(&s.endpoint, "endpoint", os.Getenv("DOCMAP_MINIO_ENDPOINT"), "MinIO endpoint host:port")
	fs.StringVar(&s.accessKey, "access-key", os.Getenv("DOCMAP_MINIO_ACCESS_KEY"), "MinIO access key")
	fs.StringVar(&s.secretKey, "secret-key", os.Getenv("DOCMAP_MINIO_SECRET_KEY"), "MinIO secret key")
	fs.BoolVar(&s.secure, "secure", false, "use TLS for MinIO")
}

func (s sinkFlags) open(ctx context.Context) (backup.Sink, error) {
	switch s.kind {
	case "dir":
		return backup.DirSink{Dir: s.dir}, nil
	case "minio":
		if s.bucket == "" || s.endpoint == "" {
			return nil, docmap.ConfigError("sink", "minio needs --bucket and --endpoint")
		}
		client, err := backup.DialMinio(s.endpoint, s.accessKey, s.secretKey, s.secure)
		if err != nil {
			return nil, docmap.Wrap(docmap.ErrConfig, "connect to minio", err)
		}
		return backup.NewMinioSink(client, s.bucket, s.prefix), nil
	case "s3":
		if s.bucket == "" {
			return nil, docmap.ConfigError("sink", "s3 needs --bucket")
		}
		client, err := backup.DialS3(ctx)
		if err != nil {
			return nil, docmap.Wrap(docmap.ErrConfig, "load aws config", err)
		}
		return backup.NewS3Sink(client, s.bucket, s.prefix), nil
	default:
		return nil, docmap.ConfigError("sink", fmt.Sprintf("unknown sink %q", s.kind))
	}
}

// RunSave writes a consistent copy of an index to a local file.
func RunSave(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("save")
	var indexName, out string
	bindIndex(fs, &indexName)
	fs.StringVar(&out, "out", "", "destination file; must not exist")
	fs.StringVar(&out, "o", "", "destination file; must not exist")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" || out == "" {
		return missing("--index", "--out")
	}
	ctx, cancel := commandContext()
	defer cancel()
	store, err := openIndex(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer store.Close()
	if err := store.Save(ctx, out); err != nil {
		return cliutil.Fail(docmap.StoreError("save", err))
	}
	return 0
}

func RunBackup(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("backup")
	var indexName, name, compress string
	var sf sinkFlags
	bindIndex(fs, &indexName)
	bindSink(fs, &sf)
	fs.StringVar(&name, "name", "", "object name; defaults to the index name")
	fs.StringVar(&compress, "compress", "zstd", "compression: none|zstd|lz4")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if indexName == "" {
		return missing("--index")
	}
	if name == "" {
		name = indexName
	}
	c, err := backup.ParseCompression(compress)
	if err != nil {
		return cliutil.Fail(docmap.ConfigError("compress", err.Error()))
	}

	ctx, cancel := commandContext()
	defer cancel()
	sink, err := sf.open(ctx)
	if err != nil {
		return cliutil.Fail(err)
	}
	store, err := openIndex(ctx, g, indexName)
	if err != nil {
		return cliutil.Fail(err)
	}
	defer store.Close()
	object, err := backup.Export(ctx, store, sink, name, c)
	if err != nil {
		return cliutil.Fail(docmap.Wrap(docmap.ErrIO, "backup", err))
	}
	output(g, map[string]string{"object": object, "compression": string(c)})
	return 0
}

func RunRestore(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("restore")
	var object, out, compress string
	var sf sinkFlags
	bindSink(fs, &sf)
	fs.StringVar(&object, "object", "", "object name including its extension")
	fs.StringVar(&out, "out", "", "destination sqlite file")
	fs.StringVar(&out, "o", "", "destination sqlite file")
	fs.StringVar(&compress, "compress", "", "compression; inferred from the object extension when empty")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if object == "" || out == "" {
		return missing("--object", "--out")
	}
	c, err := restoreCompression(object, compress)
	if err != nil {
		return cliutil.Fail(err)
	}

	ctx, cancel := commandContext()
	defer cancel()
	sink, err := sf.open(ctx)
	if err != nil {
		return cliutil.Fail(err)
	}
	if err := backup.Restore(ctx, sink, object, out, c); err != nil {
		return cliutil.Fail(docmap.Wrap(docmap.ErrIO, "restore", err))
	}
	return 0
}

func restoreCompression(object, flagValue string) (backup.Compression, error) {
	if flagValue != "" {
		c, err := backup.ParseCompression(flagValue)
		if err != nil {
			return "", docmap.ConfigError("compress", err.Error())
		}
		return c, nil
	}
	for _, c := range []backup.Compression{backup.Zstd, backup.LZ4} {
		if strings.HasSuffix(object, c.Extension()) {
			return c, nil
		}
	}
	return backup.None, nil
}
