// Package backup copies a saved index to object storage and back.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Saver writes a consistent copy of an index to a local file. index.Store,
// kvs.Store, docmap.ObjectDB and docmap.ValuesDB all implement it.
type Saver interface {
	Save(ctx context.Context, dest string) error
}

// Export saves src to a temporary file and streams it, compressed with c,
// to sink under name plus the compression extension. It returns the object
// name.
func Export(ctx context.Context, src Saver, sink Sink, name string, c Compression) (string, error) {
	dir, err := os.MkdirTemp("", "docmap-backup-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "index.db")
	if err := src.Save(ctx, local); err != nil {
		return "", fmt.Errorf("save index: %w", err)
	}
	f, err := os.Open(local)
	if err != nil {
		return "", err
	}
	defer f.Close()

	object := name + c.Extension()
	if err := upload(ctx, f, sink, object, c); err != nil {
		return "", err
	}
	return object, nil
}

func upload(ctx context.Context, r io.Reader, sink Sink, object string, c Compression) error {
	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zw, err := NewWriter(pw, c)
		if err != nil {
			pw.CloseWithError(err)
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("compress: %w", err)
		}
		return pw.Close()
	})
	g.Go(func() error {
		err := sink.Upload(ctx, object, pr)
		pr.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("upload %s: %w", object, err)
		}
		return nil
	})
	return g.Wait()
}

// Restore downloads object from sink, decompresses it with c and writes it
// to dest. dest is written through a temporary file and renamed into place.
func Restore(ctx context.Context, sink Sink, object, dest string, c Compression) error {
	rc, err := sink.Download(ctx, object)
	if err != nil {
		return fmt.Errorf("download %s: %w", object, err)
	}
	defer rc.Close()
	zr, err := NewReader(rc, c)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	defer zr.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, zr); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("decompress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
