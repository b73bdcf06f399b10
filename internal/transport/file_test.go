package transport

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

type fixedCounter struct{ n uint64 }

func (c *fixedCounter) Next() uint64 { c.n++; return c.n }

func newFileTransport(t *testing.T, mutate func(*Config), opts ...Option) *FileTransport {
	t.Helper()
	cfg := DefaultConfig(ModeFile)
	cfg.TempDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	base := []Option{
		WithLogger(quietLogger()),
		WithPID(4242),
		WithProcessTable(noProcs{}),
		WithFreeSpace(freeSpace(700 << 20)),
	}
	tr, err := NewFile(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestFile_Send10MB(t *testing.T) {
	tr := newFileTransport(t, nil)
	proc, frames := newPipeProc(t, true)
	data := payload(10 << 20)
	meta := &Metadata{SessionID: "report-7", SequenceNumber: 1, OutputFormat: "PDF"}

	if !tr.Send(context.Background(), proc, data, meta) {
		t.Fatal("Send() = false, want true")
	}
	if filepath.Dir(meta.FilePath) != tr.Dir() {
		t.Errorf("FilePath %q not inside %q", meta.FilePath, tr.Dir())
	}

	got, err := os.ReadFile(meta.FilePath)
	if err != nil {
		t.Fatalf("read snapshot file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("file contents differ from payload")
	}
	if Checksum(got) != meta.Checksum {
		t.Error("checksum mismatch")
	}

	f := nextFrame(t, frames)
	if f.meta.FilePath != meta.FilePath || f.payload != nil {
		t.Errorf("child received %+v with %d payload bytes", f.meta, len(f.payload))
	}
}

func TestFile_Naming(t *testing.T) {
	tr := newFileTransport(t, nil, WithCounter(&fixedCounter{}))
	proc, _ := newPipeProc(t, true)
	meta := &Metadata{SessionID: "a/b c", SequenceNumber: 3, OutputFormat: ".PNG"}

	if !tr.Send(context.Background(), proc, []byte("png"), meta) {
		t.Fatal("Send() = false")
	}
	if got := filepath.Base(meta.FilePath); got != "snap_a_b_c_3_1.png" {
		t.Errorf("file name = %q", got)
	}
	if tr.Dir() != filepath.Join(tr.cfg.TempDir, "snapbridge-files-4242") {
		t.Errorf("Dir() = %q", tr.Dir())
	}
}

func TestFile_RejectsOversizePayload(t *testing.T) {
	tr := newFileTransport(t, func(c *Config) { c.MaxPayloadSize = 100 << 20 })
	proc, _ := newPipeProc(t, true)

	if tr.Send(context.Background(), proc, make([]byte, 101<<20), &Metadata{}) {
		t.Fatal("Send() of 101MB under a 100MB cap = true")
	}
	if names := listDir(t, tr.Dir()); len(names) != 0 {
		t.Errorf("resources left behind: %v", names)
	}
}

func TestFile_InsufficientDisk(t *testing.T) {
	tr := newFileTransport(t, nil, WithFreeSpace(freeSpace(520<<20)))
	proc, _ := newPipeProc(t, true)

	if tr.Send(context.Background(), proc, make([]byte, 30<<20), &Metadata{}) {
		t.Fatal("Send() below the free-space floor = true")
	}
	if names := listDir(t, tr.Dir()); len(names) != 0 {
		t.Errorf("resources left behind: %v", names)
	}
}

func TestFile_ExitedProcess(t *testing.T) {
	tr := newFileTransport(t, nil)
	proc, _ := newPipeProc(t, true)
	proc.exit()

	if tr.Send(context.Background(), proc, []byte("data"), &Metadata{}) {
		t.Fatal("Send() to exited process = true")
	}
	if names := listDir(t, tr.Dir()); len(names) != 0 {
		t.Errorf("resources left behind: %v", names)
	}
}

func TestFile_DeliveryFailureRemovesFile(t *testing.T) {
	tr := newFileTransport(t, nil)
	proc, _ := newPipeProc(t, false)
	proc.w.Close()

	meta := &Metadata{}
	if tr.Send(context.Background(), proc, []byte("data"), meta) {
		t.Fatal("Send() with closed input = true")
	}
	if meta.FilePath != "" {
		t.Errorf("FilePath = %q after failed send", meta.FilePath)
	}
	if names := listDir(t, tr.Dir()); len(names) != 0 {
		t.Errorf("partial file left behind: %v", names)
	}
}

func TestFile_CleanupIdempotent(t *testing.T) {
	tr := newFileTransport(t, nil)
	proc, _ := newPipeProc(t, true)
	meta := &Metadata{SessionID: "s"}

	if !tr.Send(context.Background(), proc, []byte("data"), meta) {
		t.Fatal("Send() = false")
	}
	tr.Cleanup(meta)
	tr.Cleanup(meta)
	if _, err := os.Stat(meta.FilePath); !os.IsNotExist(err) {
		t.Errorf("file still present after Cleanup: %v", err)
	}

	tr.Cleanup(nil)
	tr.Cleanup(&Metadata{SessionID: "never-sent"})
}

func TestFile_CleanupIgnoresForeignPaths(t *testing.T) {
	tr := newFileTransport(t, nil)
	foreign := filepath.Join(t.TempDir(), "keep.txt")
	if err := os.WriteFile(foreign, []byte("mine"), 0o600); err != nil {
		t.Fatal(err)
	}

	tr.Cleanup(&Metadata{FilePath: foreign})
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file removed: %v", err)
	}
}

func TestFile_StartupRemovesLeftovers(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, FileDirPrefix+"4242")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"snap_old_1_1.bin", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	newFileTransport(t, func(c *Config) { c.TempDir = tmp })

	names := listDir(t, dir)
	if len(names) != 1 || names[0] != "notes.txt" {
		t.Errorf("directory after startup = %v, want only notes.txt", names)
	}
}

type liveProcs map[int]time.Time

func (l liveProcs) Exists(pid int) bool { _, ok := l[pid]; return ok }
func (l liveProcs) StartTime(pid int) (time.Time, error) {
	return l[pid], nil
}

func TestFile_StartupSweepsOrphanDirectories(t *testing.T) {
	tmp := t.TempDir()
	dead := filepath.Join(tmp, FileDirPrefix+"777")
	alive := filepath.Join(tmp, FileDirPrefix+"888")
	for _, d := range []string{dead, alive} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			t.Fatal(err)
		}
	}

	newFileTransport(t, func(c *Config) { c.TempDir = tmp },
		WithProcessTable(liveProcs{888: time.Unix(0, 0)}))

	if _, err := os.Stat(dead); !os.IsNotExist(err) {
		t.Errorf("orphan of dead process kept: %v", err)
	}
	if _, err := os.Stat(alive); err != nil {
		t.Errorf("directory of live process removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, FileDirPrefix+strconv.Itoa(4242))); err != nil {
		t.Errorf("own directory missing: %v", err)
	}
}

func TestFile_CloseRemovesDirectory(t *testing.T) {
	tr := newFileTransport(t, nil)
	proc, _ := newPipeProc(t, true)
	if !tr.Send(context.Background(), proc, []byte("data"), &Metadata{}) {
		t.Fatal("Send() = false")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(tr.Dir()); !os.IsNotExist(err) {
		t.Errorf("directory still present after Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
