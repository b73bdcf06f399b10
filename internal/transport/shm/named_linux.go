//go:build linux

package shm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Named creates POSIX shared-memory objects. On Linux shm_open is an open
// inside the tmpfs mounted at /dev/shm, so the objects are plain files there.
type Named struct {
	dir string
}

// NewNamed returns a Named strategy rooted at dir, normally DevShm.
func NewNamed(dir string) (*Named, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnsupported, dir)
	}
	return &Named{dir: dir}, nil
}

func (n *Named) Kind() Kind  { return KindNamed }
func (n *Named) Dir() string { return n.dir }

// Create makes the object "/"+name.
func (n *Named) Create(ctx context.Context, name string, data []byte) (*Segment, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return create(ctx, KindNamed, "/"+name, filepath.Join(n.dir, name), data)
}

// NamedPath returns the file under /dev/shm for a segment name as written
// to the child ("/snapbridge_...").
func NamedPath(name string) string {
	return filepath.Join(DevShm, strings.TrimPrefix(name, "/"))
}
