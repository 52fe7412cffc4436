// Package blobstore reads and writes render outputs either on the local
// filesystem or, for gs://bucket/object paths, in Google Cloud Storage.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	googleopt "google.golang.org/api/option"
)

const gcsScheme = "gs://"

// Store hands out readers and writers for paths.  The GCS client is only
// created the first time a gs:// path is used.
type Store struct {
	clientOpts []googleopt.ClientOption

	mu  sync.Mutex
	gcs *storage.Client
}

func New(clientOpts ...googleopt.ClientOption) *Store {
	return &Store{
		clientOpts: clientOpts,
	}
}

// Close releases the GCS client, if one was created.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gcs == nil {
		return nil
	}
	err := s.gcs.Close()
	s.gcs = nil
	return err
}

// splitGCSPath splits gs://bucket/object.  ok is false for paths that are not
// in GCS.
func splitGCSPath(p string) (bucket, object string, ok bool, err error) {
	if !strings.HasPrefix(p, gcsScheme) {
		return "", "", false, nil
	}

	rest := strings.TrimPrefix(p, gcsScheme)
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", true, fmt.Errorf("malformed GCS path %q, want gs://bucket/object", p)
	}
	return rest[:slash], rest[slash+1:], true, nil
}

func (s *Store) object(ctx context.Context, bucket, object string) (*storage.ObjectHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gcs == nil {
		gcs, err := storage.NewClient(ctx, s.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("while creating GCS client: %w", err)
		}
		s.gcs = gcs
	}
	return s.gcs.Bucket(bucket).Object(object), nil
}

// Writer is returned by Create.
type Writer interface {
	io.WriteCloser

	// Abort discards everything written and leaves the destination as it was.
	Abort() error
}

// Create opens path for writing, replacing whatever is there.  Nothing is
// visible at path until the returned writer is closed without error.
func (s *Store) Create(ctx context.Context, p string) (Writer, error) {
	tracer := otel.Tracer("lumen/blobstore")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Store.Create")
	defer span.End()

	span.SetAttributes(attribute.String("path", p))

	bucket, object, inGCS, err := splitGCSPath(p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if inGCS {
		obj, err := s.object(ctx, bucket, object)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		// Cancelling the writer's context is the only way to abandon an
		// upload.
		wctx, cancel := context.WithCancel(ctx)
		span.SetStatus(codes.Ok, "")
		return &gcsWriter{Writer: obj.NewWriter(wctx), cancel: cancel}, nil
	}

	w, err := newAtomicFile(p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return w, nil
}

// Open opens path for reading.  A missing path gives an error satisfying
// errors.Is(err, fs.ErrNotExist).
func (s *Store) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	tracer := otel.Tracer("lumen/blobstore")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Store.Open")
	defer span.End()

	span.SetAttributes(attribute.String("path", p))

	bucket, object, inGCS, err := splitGCSPath(p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !inGCS {
		f, err := os.Open(p)
		if err != nil {
			err := fmt.Errorf("while opening file: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetStatus(codes.Ok, "")
		return f, nil
	}

	obj, err := s.object(ctx, bucket, object)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			err = fmt.Errorf("%w: %v", fs.ErrNotExist, err)
		}
		err := fmt.Errorf("while opening reader for object: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return r, nil
}

// Exists reports whether something is stored at path.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	bucket, object, inGCS, err := splitGCSPath(p)
	if err != nil {
		return false, err
	}

	if !inGCS {
		_, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("while statting file: %w", err)
		}
		return true, nil
	}

	obj, err := s.object(ctx, bucket, object)
	if err != nil {
		return false, err
	}

	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("while reading object attributes: %w", err)
	}
	return true, nil
}

type gcsWriter struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (g *gcsWriter) Close() error {
	defer g.cancel()
	if err := g.Writer.Close(); err != nil {
		return fmt.Errorf("while closing object writer: %w", err)
	}
	return nil
}

func (g *gcsWriter) Abort() error {
	g.cancel()
	g.Writer.Close()
	return nil
}

// atomicFile writes to a temporary file next to the destination and renames
// it into place on Close.
type atomicFile struct {
	*os.File
	dest string
}

func newAtomicFile(dest string) (*atomicFile, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("while creating temporary file: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("while setting temporary file mode: %w", err)
	}
	return &atomicFile{File: f, dest: dest}, nil
}

func (a *atomicFile) Abort() error {
	a.File.Close()
	if err := os.Remove(a.File.Name()); err != nil {
		return fmt.Errorf("while removing temporary file: %w", err)
	}
	return nil
}

func (a *atomicFile) Close() error {
	if err := a.File.Close(); err != nil {
		os.Remove(a.File.Name())
		return fmt.Errorf("while closing temporary file: %w", err)
	}
	if err := os.Rename(a.File.Name(), a.dest); err != nil {
		os.Remove(a.File.Name())
		return fmt.Errorf("while moving temporary file into place: %w", err)
	}
	return nil
}
