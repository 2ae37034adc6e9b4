package vcf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/cenkalti/backoff"
	"github.com/klauspost/compress/gzip"
)

// OpenRetries bounds how many times opening a remote object is retried.
var OpenRetries uint64 = 5

var gzipMagic = []byte{0x1f, 0x8b}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewReader wraps src, transparently decompressing gzip and bgzip input.
// Plain text is passed through untouched.
func NewReader(src io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(src, 1<<20)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, pfx.Err(err)
	}
	if !bytes.Equal(magic, gzipMagic) {
		return &readCloser{Reader: br}, nil
	}

	// bgzip files are a series of gzip members, which the reader handles in
	// multistream mode (the default).
	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz}}, nil
}

// Open opens a local path or a gs://bucket/object URL, decompressing gzip
// transparently. Opening a GCS object is retried with exponential backoff.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, "gs://") {
		return openGCS(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, pfx.Err(err)
	}
	rc := r.(*readCloser)
	rc.closers = append([]io.Closer{f}, rc.closers...)
	return rc, nil
}

func splitGCSPath(path string) (bucket, object string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("Malformed GCS path %q, expected gs://bucket/object", path)
	}
	return parts[0], parts[1], nil
}

func openGCS(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, object, err := splitGCSPath(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, pfx.Err(err)
	}

	var obj *storage.Reader
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	err = backoff.Retry(func() error {
		var err error
		obj, err = client.Bucket(bucket).Object(object).NewReader(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, OpenRetries), ctx))
	if err != nil {
		client.Close()
		return nil, pfx.Err(err)
	}

	r, err := NewReader(obj)
	if err != nil {
		obj.Close()
		client.Close()
		return nil, pfx.Err(err)
	}
	rc := r.(*readCloser)
	rc.closers = append([]io.Closer{client, obj}, rc.closers...)
	return rc, nil
}
