// Package notesrv supervises the companion note-server subprocess: it
// resolves the binary on PATH, spawns it against the notes directory,
// polls until it answers HTTP, and tears it down on shutdown.
//
// A note server already answering on the configured port is adopted
// rather than respawned, so doughub restarts don't kill a server the
// user started by hand.
package notesrv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

var (
	// ErrBinaryNotFound means the note-server executable is not on PATH.
	ErrBinaryNotFound = errors.New("notesrv: binary not found on PATH")
	// ErrPortInUse means the port is bound by something that does not
	// answer the health probe, so spawning would fail and adopting is
	// unsafe.
	ErrPortInUse = errors.New("notesrv: port bound by an unresponsive process")
	// ErrStartTimeout means the spawned process never became healthy.
	ErrStartTimeout = errors.New("notesrv: server did not become healthy in time")
)

// captureLimit bounds retained subprocess output. Enough for a crash
// report, not enough to grow without bound.
const captureLimit = 64 << 10

// healthAttempts caps the startup health poll.
const healthAttempts = 30

// commandArgs builds the argv for the note-server binary: the "web"
// subcommand serving the given port with the notes volume writable.
// NOTE_SERVER_BINARY names the executable; the subcommand is fixed.
func commandArgs(port string) []string {
	return []string{"web", "--port=" + port, "--writable"}
}

// Supervisor manages one note-server subprocess.
type Supervisor struct {
	binary   string
	port     string
	notesDir string
	logger   *slog.Logger

	client *http.Client

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	adopted bool // true when an existing server was found, not spawned
	stdout  *boundedBuffer
	stderr  *boundedBuffer
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New creates a Supervisor for the given binary, port, and notes dir.
func New(binary, port, notesDir string, opts ...Option) *Supervisor {
	s := &Supervisor{
		binary:   binary,
		port:     port,
		notesDir: notesDir,
		logger:   slog.Default(),
		client:   &http.Client{Timeout: 2 * time.Second},
		state:    StateStopped,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start brings the note server up. Adoption first: if the port already
// answers the health probe, the existing server is used. Otherwise the
// binary is spawned and polled until healthy.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return err
	}

	if s.healthy(ctx) {
		s.mu.Lock()
		s.state = StateRunning
		s.adopted = true
		s.mu.Unlock()
		s.logger.Info("notesrv: adopted running server", "port", s.port)
		return nil
	}
	if portBound(s.port) {
		return fail(fmt.Errorf("%w: port %s", ErrPortInUse, s.port))
	}

	path, err := exec.LookPath(s.binary)
	if err != nil {
		return fail(fmt.Errorf("%w: %s", ErrBinaryNotFound, s.binary))
	}

	if err := os.MkdirAll(s.notesDir, 0o755); err != nil {
		return fail(fmt.Errorf("notesrv: mkdir notes dir: %w", err))
	}

	cmd := exec.Command(path, commandArgs(s.port)...)
	cmd.Env = append(os.Environ(), "NOTES_DIR="+s.notesDir)
	stdout := &boundedBuffer{limit: captureLimit}
	stderr := &boundedBuffer{limit: captureLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("notesrv: spawn %s: %w", path, err))
	}
	s.mu.Lock()
	s.cmd = cmd
	s.stdout = stdout
	s.stderr = stderr
	s.mu.Unlock()
	s.logger.Info("notesrv: spawned", "binary", path, "port", s.port, "pid", cmd.Process.Pid)

	// Poll until the server answers, with a gentle backoff.
	for i := 0; i < healthAttempts; i++ {
		select {
		case <-ctx.Done():
			s.Stop()
			return fail(ctx.Err())
		case <-time.After(time.Duration(200+i*100) * time.Millisecond):
		}
		if s.healthy(ctx) {
			s.mu.Lock()
			s.state = StateRunning
			s.mu.Unlock()
			s.logger.Info("notesrv: healthy", "port", s.port, "attempts", i+1)
			return nil
		}
	}

	s.logger.Error("notesrv: startup timed out",
		"port", s.port, "stderr", stderr.String())
	s.Stop()
	return fail(ErrStartTimeout)
}

// Stop tears the subprocess down: SIGTERM, a grace period, then SIGKILL.
// Adopted servers are left running — they were never ours.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	cmd := s.cmd
	adopted := s.adopted
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil && !adopted {
		cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			cmd.Process.Kill()
			<-done
		}
		s.logger.Info("notesrv: stopped", "port", s.port)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.cmd = nil
	s.adopted = false
	s.mu.Unlock()
}

// Output returns the captured subprocess stdout and stderr tails.
func (s *Supervisor) Output() (stdout, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdout != nil {
		stdout = s.stdout.String()
	}
	if s.stderr != nil {
		stderr = s.stderr.String()
	}
	return stdout, stderr
}

// healthy probes the note server's root endpoint.
func (s *Supervisor) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://127.0.0.1:"+s.port+"/", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode < 500
}

// portBound reports whether something already listens on the port.
func portBound(port string) bool {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// boundedBuffer keeps at most limit bytes, discarding the oldest.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if b.buf.Len() > b.limit {
		trimmed := b.buf.Bytes()[b.buf.Len()-b.limit:]
		var nb bytes.Buffer
		nb.Write(trimmed)
		b.buf = nb
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
