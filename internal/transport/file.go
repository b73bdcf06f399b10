package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/yndnr/snapbridge/internal/infra/diskspace"
)

// FileTransport writes each payload to its own file in a process-scoped
// directory and sends the path.
type FileTransport struct {
	base
	dir       string
	counter   Counter
	freeSpace diskspace.Func

	closeOnce sync.Once
	closeErr  error
}

// NewFile creates the process directory, clears leftovers of an earlier
// process with the same id and removes directories of dead host processes.
func NewFile(cfg Config, opts ...Option) (*FileTransport, error) {
	o := buildOptions(opts)
	t := &FileTransport{
		base:      newBase(ModeFile, cfg, o),
		counter:   o.counter,
		freeSpace: o.freeSpace,
	}
	t.dir = filepath.Join(t.cfg.TempDir, FileDirPrefix+strconv.Itoa(o.pid))

	if err := os.MkdirAll(t.dir, 0o700); err != nil {
		return nil, fmt.Errorf("transport: create %s: %w", t.dir, err)
	}
	removeLeftovers(t.logger, t.dir, FilePrefix)

	rep := o.sweeper().Sweep(t.cfg.TempDir, FileDirPrefix)
	if err := rep.Err(); err != nil {
		t.logger.Warn("orphan sweep incomplete", "dir", t.cfg.TempDir, "error", err)
	}
	return t, nil
}

// Dir returns the process-scoped directory.
func (t *FileTransport) Dir() string { return t.dir }

func (t *FileTransport) Send(ctx context.Context, proc Process, data []byte, meta *Metadata) bool {
	return t.guard(ctx, meta, len(data), func(ctx context.Context) error {
		if proc == nil {
			return ErrChannelClosed
		}
		if proc.Exited() {
			return ErrProcessExited
		}
		if err := t.checkPayload(len(data)); err != nil {
			return err
		}
		if err := t.checkDisk(t.freeSpace, t.dir, len(data)); err != nil {
			return err
		}

		m := *meta
		m.complete(ModeFile, data)
		path := filepath.Join(t.dir, fileName(&m, t.counter.Next()))
		if err := writeFile(ctx, path, data); err != nil {
			t.remove(path)
			return err
		}
		m.FilePath = path

		line, err := m.encodeLine()
		if err == nil {
			err = deliver(ctx, proc, func(w *bufio.Writer) error {
				return writeLine(w, line)
			})
		}
		if err != nil {
			t.remove(path)
			return err
		}
		*meta = m
		return nil
	})
}

// Cleanup deletes the file named by meta. Paths outside the transport's
// directory are ignored.
func (t *FileTransport) Cleanup(meta *Metadata) {
	if meta == nil || meta.FilePath == "" {
		return
	}
	t.safely("file cleanup", func() {
		if filepath.Dir(filepath.Clean(meta.FilePath)) != t.dir {
			t.logger.Warn("ignoring cleanup outside transport directory", "path", meta.FilePath)
			return
		}
		t.metrics.Cleanups.WithLabelValues(string(t.mode)).Inc()
		t.remove(meta.FilePath)
	})
}

// Close removes the process directory and everything left in it.
func (t *FileTransport) Close() error {
	t.closeOnce.Do(func() {
		if err := os.RemoveAll(t.dir); err != nil {
			t.closeErr = fmt.Errorf("transport: remove %s: %w", t.dir, err)
		}
	})
	return t.closeErr
}

func (t *FileTransport) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn("failed to remove snapshot file", "path", path, "error", err)
	}
}

// writeFile creates path exclusively and writes data to stable storage,
// checking ctx between chunks.
func writeFile(ctx context.Context, path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	for off := 0; off < len(data); off += writeChunk {
		if err := ctx.Err(); err != nil {
			f.Close()
			return contextError(ctx)
		}
		end := min(off+writeChunk, len(data))
		if _, err := f.Write(data[off:end]); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const writeChunk = 4 << 20
