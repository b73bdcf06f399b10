// Package shm creates shared-memory segments that hold one snapshot each.
//
// Two strategies exist. Named places POSIX shared-memory objects under
// /dev/shm, where a child opens them by name. FileBacked maps an ordinary
// file inside a private directory and hands the child its path. Both size
// the segment to exactly the payload, copy the payload through a writable
// mapping, drop the mapping and keep the descriptor open until Dispose.
package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Kind selects a segment strategy.
type Kind string

const (
	KindAuto  Kind = "auto"
	KindNamed Kind = "named"
	KindFile  Kind = "file"
)

// DevShm is where the kernel exposes POSIX shared-memory objects on Linux.
const DevShm = "/dev/shm"

// copyChunk bounds how much is copied between cancellation checks.
const copyChunk = 4 << 20

var (
	// ErrUnsupported is returned when a strategy cannot run on this host.
	ErrUnsupported = errors.New("shm: strategy not supported on this platform")

	// ErrInvalidName is returned for names that are empty or contain a
	// path separator.
	ErrInvalidName = errors.New("shm: invalid segment name")
)

// Strategy creates segments.
type Strategy interface {
	Kind() Kind
	// Dir is the directory holding the segments' backing objects.
	Dir() string
	// Create makes a segment called name holding exactly data. On error no
	// resource is left behind.
	Create(ctx context.Context, name string, data []byte) (*Segment, error)
}

// Segment is one created shared-memory object.
type Segment struct {
	// Name is what a child uses to open the segment.
	Name string
	// Path is the filesystem path of the backing object.
	Path string
	// Size is the segment length in bytes.
	Size int

	kind Kind
	file *os.File

	once sync.Once
	err  error
}

// BackingFile returns the mapped file for file-backed segments and "" for
// named ones.
func (s *Segment) BackingFile() string {
	if s.kind == KindFile {
		return s.Path
	}
	return ""
}

// Dispose closes the descriptor and unlinks the backing object. Later calls
// return the first call's result.
func (s *Segment) Dispose() error {
	s.once.Do(func() {
		var errs []error
		if s.file != nil {
			if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}

// New returns the strategy for kind. fileDir is where FileBacked places its
// files; it must already exist.
func New(kind Kind, fileDir string) (Strategy, error) {
	switch kind {
	case KindNamed:
		return NewNamed(DevShm)
	case KindFile:
		return NewFileBacked(fileDir), nil
	case KindAuto, "":
		if s, err := NewNamed(DevShm); err == nil {
			return s, nil
		}
		return NewFileBacked(fileDir), nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupported, kind)
	}
}

// FileBacked maps regular files inside one directory.
type FileBacked struct {
	dir string
}

// NewFileBacked returns a strategy creating segments in dir.
func NewFileBacked(dir string) *FileBacked {
	return &FileBacked{dir: dir}
}

func (f *FileBacked) Kind() Kind  { return KindFile }
func (f *FileBacked) Dir() string { return f.dir }

func (f *FileBacked) Create(ctx context.Context, name string, data []byte) (*Segment, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return create(ctx, KindFile, name, filepath.Join(f.dir, name), data)
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// create opens path exclusively, fills it and wraps it in a Segment.
func create(ctx context.Context, kind Kind, name, path string, data []byte) (*Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	seg := &Segment{Name: name, Path: path, Size: len(data), kind: kind, file: file}
	if err := fill(ctx, file, data); err != nil {
		return nil, errors.Join(fmt.Errorf("shm: fill %s: %w", path, err), seg.Dispose())
	}
	return seg, nil
}

// copyInChunks copies src into dst, checking ctx between chunks.
func copyInChunks(ctx context.Context, dst, src []byte) error {
	for off := 0; off < len(src); off += copyChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+copyChunk, len(src))
		copy(dst[off:end], src[off:end])
	}
	return nil
}
