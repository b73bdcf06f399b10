package extension

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// stderrDrain bounds how long Wait keeps copying stderr after the process
// exits. A grandchild that inherited the pipe would otherwise hold it open.
const stderrDrain = time.Second

// Child is a running extension process. Its stdin and stdout are os.Pipe
// ends owned by the host, so writes to Input honor deadlines.
type Child struct {
	sync.Mutex

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File

	exited  atomic.Bool
	done    chan struct{}
	waitErr error

	closeInput sync.Once
}

// ChildOption configures a Child before it starts.
type ChildOption func(*exec.Cmd)

// WithStderr sends the child's stderr to w. Defaults to the host's stderr.
func WithStderr(w io.Writer) ChildOption {
	return func(c *exec.Cmd) { c.Stderr = w }
}

// WithEnv appends environment variables in "KEY=value" form.
func WithEnv(env ...string) ChildOption {
	return func(c *exec.Cmd) { c.Env = append(os.Environ(), env...) }
}

// WithDir sets the child's working directory.
func WithDir(dir string) ChildOption {
	return func(c *exec.Cmd) { c.Dir = dir }
}

// Start launches name with args.
func Start(name string, args []string, opts ...ChildOption) (*Child, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("extension: stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, fmt.Errorf("extension: stdout pipe: %w", err)
	}

	cmd := exec.Command(name, args...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = stderrDrain
	setProcessGroup(cmd)
	for _, opt := range opts {
		opt(cmd)
	}

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{inR, inW, outR, outW} {
			f.Close()
		}
		return nil, fmt.Errorf("extension: start %s: %w", name, err)
	}
	// The child holds its own copies now.
	inR.Close()
	outW.Close()

	c := &Child{cmd: cmd, stdin: inW, stdout: outR, done: make(chan struct{})}
	go c.wait()
	return c, nil
}

func (c *Child) wait() {
	c.waitErr = c.cmd.Wait()
	c.exited.Store(true)
	close(c.done)
}

func (c *Child) Pid() int         { return c.cmd.Process.Pid }
func (c *Child) Exited() bool     { return c.exited.Load() }
func (c *Child) Input() io.Writer { return c.stdin }

// Output is the child's stdout, which carries acknowledgements.
func (c *Child) Output() io.Reader { return c.stdout }

// Done is closed once the process has exited.
func (c *Child) Done() <-chan struct{} { return c.done }

// Wait blocks until the process exits and returns its exit error.
func (c *Child) Wait() error {
	<-c.done
	return c.waitErr
}

// CloseInput closes stdin, which tells the child no more frames follow.
func (c *Child) CloseInput() error {
	var err error
	c.closeInput.Do(func() { err = c.stdin.Close() })
	return err
}

// Stop closes stdin and waits for the child to exit, killing it and
// anything it spawned when ctx ends first.
func (c *Child) Stop(ctx context.Context) error {
	_ = c.CloseInput()
	select {
	case <-c.done:
	case <-ctx.Done():
		if err := killGroup(c.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("extension: kill %d: %w", c.Pid(), err)
		}
		<-c.done
	}
	c.stdout.Close()
	return c.waitErr
}
