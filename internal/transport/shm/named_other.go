//go:build !linux

package shm

import (
	"context"
	"path/filepath"
	"strings"
)

// Named is only available on Linux.
type Named struct{}

// NewNamed always fails outside Linux.
func NewNamed(string) (*Named, error) {
	return nil, ErrUnsupported
}

func (n *Named) Kind() Kind  { return KindNamed }
func (n *Named) Dir() string { return "" }

func (n *Named) Create(context.Context, string, []byte) (*Segment, error) {
	return nil, ErrUnsupported
}

// NamedPath mirrors the Linux layout so callers compile everywhere.
func NamedPath(name string) string {
	return filepath.Join(DevShm, strings.TrimPrefix(name, "/"))
}
