package process

import (
	"bytes"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// Handle tracks a background process. Start and Stop are paired: whoever
// starts a daemon owns its handle and must stop it at teardown.
type Handle struct {
	cmd    *exec.Cmd
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	waitErr  error
	exited   bool
	exitCode int
	done     chan struct{}
	mu       sync.Mutex
}

// Start launches a command as a background process and returns its handle.
func Start(cmd Command) (*Handle, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	c := exec.Command(cmd.Binary, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}

	h := &Handle{
		cmd:    c,
		stdout: &stdout,
		stderr: &stderr,
		done:   make(chan struct{}),
	}

	go func() {
		err := c.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.exited = true
		h.exitCode = c.ProcessState.ExitCode()
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// PID returns the process ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Exited reports whether the process has terminated on its own, along with
// its exit code when it has.
func (h *Handle) Exited() (bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited, h.exitCode
}

// Output returns whatever the process has written so far.
func (h *Handle) Output() (stdout, stderr []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stdout.Bytes(), h.stderr.Bytes()
}

// Kill terminates the process group forcibly and waits for it to be reaped.
// Killing an already-exited process is a no-op.
func (h *Handle) Kill() error {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()

	if !exited {
		if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return fmt.Errorf("process: kill pid %d: %w", h.cmd.Process.Pid, err)
		}
	}
	<-h.done
	return nil
}
