package process

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/types"
)

const killGrace = 5 * time.Second

// LaunchOptions configure a subprocess launch.
type LaunchOptions struct {
	Command string
	Cwd     string
	Wait    bool
	MaxWait time.Duration     // only meaningful with Wait
	Env     map[string]string // appended to the parent environment
}

// LaunchResult reports the outcome of LaunchProcess.
type LaunchResult struct {
	TerminalID int                `json:"terminal_id"`
	State      types.ProcessState `json:"state"`
	ReturnCode *int               `json:"return_code,omitempty"`
	Output     string             `json:"output"`
}

// ProcessInfo is a snapshot of one supervised process.
type ProcessInfo struct {
	TerminalID int                `json:"terminal_id"`
	Command    string             `json:"command"`
	Cwd        string             `json:"cwd"`
	State      types.ProcessState `json:"state"`
	ReturnCode *int               `json:"return_code,omitempty"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    *time.Time         `json:"end_time,omitempty"`
}

// proc is the supervisor-owned handle for one subprocess.
type proc struct {
	mu         sync.Mutex
	terminalID int
	command    string
	cwd        string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	state      types.ProcessState
	returnCode *int
	killed     bool
	startTime  time.Time
	endTime    *time.Time

	lines      []string // pending output, drained by readers
	buffer     strings.Builder
	waitDone   chan struct{}
	readerDone chan struct{}
}

// Supervisor manages subprocess lifecycles. Terminal ids are monotonic and
// never reused; handles persist until the supervisor itself is dropped.
type Supervisor struct {
	mu     sync.Mutex
	procs  map[int]*proc
	nextID int
	logger zerolog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		procs:  make(map[int]*proc),
		nextID: 1,
		logger: log.WithComponent("process"),
	}
}

// shellCommand wraps command for the platform shell.
func shellCommand(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", command)
	}
	return exec.Command("/bin/sh", "-c", command)
}

// LaunchProcess starts a shell subprocess with stderr merged into stdout
// and a dedicated reader goroutine draining output. With Wait set, it
// blocks until exit or MaxWait; a wait timeout reports TIMEOUT without
// killing the process.
func (s *Supervisor) LaunchProcess(opts LaunchOptions) (*LaunchResult, error) {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = "."
	}
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: working directory %s does not exist", types.ErrValidation, opts.Cwd)
	}

	cmd := shellCommand(opts.Command)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %q: %w", opts.Command, err)
	}
	pw.Close() // child holds the write end now

	p := &proc{
		command:    opts.Command,
		cwd:        cwd,
		cmd:        cmd,
		stdin:      stdin,
		state:      types.ProcessRunning,
		startTime:  time.Now(),
		waitDone:   make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	s.mu.Lock()
	p.terminalID = s.nextID
	s.nextID++
	s.procs[p.terminalID] = p
	s.mu.Unlock()

	go p.readLoop(pr)
	go p.reap()

	metrics.ProcessesLaunched.Inc()
	s.logger.Debug().
		Int("terminal_id", p.terminalID).
		Str("command", opts.Command).
		Msg("process launched")

	if !opts.Wait {
		return &LaunchResult{TerminalID: p.terminalID, State: types.ProcessRunning}, nil
	}

	deadline := time.Time{}
	if opts.MaxWait > 0 {
		deadline = time.Now().Add(opts.MaxWait)
	}
	for {
		select {
		case <-p.waitDone:
			<-p.readerDone
			output := p.drainAll()
			p.mu.Lock()
			state, rc := p.state, p.returnCode
			p.mu.Unlock()
			return &LaunchResult{TerminalID: p.terminalID, State: state, ReturnCode: rc, Output: output}, nil
		case <-time.After(50 * time.Millisecond):
			if !deadline.IsZero() && time.Now().After(deadline) {
				// Still RUNNING underneath; the caller decides what to do.
				return &LaunchResult{
					TerminalID: p.terminalID,
					State:      types.ProcessTimeout,
					Output:     p.drainAll(),
				}, nil
			}
		}
	}
}

// ReadProcess drains queued output. With wait set it loops until the
// process exits or maxWait elapses, returning whatever was read.
func (s *Supervisor) ReadProcess(terminalID int, wait bool, maxWait time.Duration) (string, types.ProcessState, error) {
	p, err := s.get(terminalID)
	if err != nil {
		return "", "", err
	}

	if !wait {
		p.refresh()
		return p.drainAll(), p.currentState(), nil
	}

	deadline := time.Time{}
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}
	var out strings.Builder
	for {
		out.WriteString(p.drainAll())
		select {
		case <-p.waitDone:
			<-p.readerDone
			out.WriteString(p.drainAll())
			return out.String(), p.currentState(), nil
		case <-time.After(50 * time.Millisecond):
			if !deadline.IsZero() && time.Now().After(deadline) {
				return out.String(), p.currentState(), nil
			}
		}
	}
}

// WriteProcess writes text to the process stdin. Fails once the process
// has exited.
func (s *Supervisor) WriteProcess(terminalID int, text string) error {
	p, err := s.get(terminalID)
	if err != nil {
		return err
	}

	p.refresh()
	p.mu.Lock()
	running := p.state == types.ProcessRunning
	p.mu.Unlock()
	if !running {
		return fmt.Errorf("%w: process %d is not running", types.ErrValidation, terminalID)
	}

	if _, err := io.WriteString(p.stdin, text); err != nil {
		return fmt.Errorf("failed to write to process %d: %w", terminalID, err)
	}
	return nil
}

// KillProcess terminates a running process: terminate, wait up to the
// grace period, then force kill. Killing an already exited process
// returns its existing state.
func (s *Supervisor) KillProcess(terminalID int) (types.ProcessState, error) {
	p, err := s.get(terminalID)
	if err != nil {
		return "", err
	}

	p.refresh()
	p.mu.Lock()
	if p.state != types.ProcessRunning {
		state := p.state
		p.mu.Unlock()
		return state, nil
	}
	p.killed = true
	p.mu.Unlock()

	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.waitDone:
	case <-time.After(killGrace):
		_ = p.cmd.Process.Kill()
		<-p.waitDone
	}

	p.mu.Lock()
	p.state = types.ProcessKilled
	state := p.state
	p.mu.Unlock()

	s.logger.Debug().Int("terminal_id", terminalID).Msg("process killed")
	return state, nil
}

// ListProcesses snapshots all handles, lazily refreshing the state of any
// process that has exited since the last observation.
func (s *Supervisor) ListProcesses() []ProcessInfo {
	s.mu.Lock()
	procs := make([]*proc, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		p.refresh()
		p.mu.Lock()
		infos = append(infos, ProcessInfo{
			TerminalID: p.terminalID,
			Command:    p.command,
			Cwd:        p.cwd,
			State:      p.state,
			ReturnCode: p.returnCode,
			StartTime:  p.startTime,
			EndTime:    p.endTime,
		})
		p.mu.Unlock()
	}

	for _, info := range infos {
		metrics.ProcessesByState.WithLabelValues(string(info.State)).Set(0)
	}
	counts := make(map[types.ProcessState]int)
	for _, info := range infos {
		counts[info.State]++
	}
	for state, n := range counts {
		metrics.ProcessesByState.WithLabelValues(string(state)).Set(float64(n))
	}

	return infos
}

// OutputBuffer returns everything the process has written so far,
// including output already drained by readers.
func (s *Supervisor) OutputBuffer(terminalID int) (string, error) {
	p, err := s.get(terminalID)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.String(), nil
}

func (s *Supervisor) get(terminalID int) (*proc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[terminalID]
	if !ok {
		return nil, fmt.Errorf("%w: terminal %d", types.ErrNotFound, terminalID)
	}
	return p, nil
}

// readLoop drains merged stdout/stderr line by line into the pending
// queue and the cumulative buffer.
func (p *proc) readLoop(r io.ReadCloser) {
	defer close(p.readerDone)
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.mu.Lock()
		p.lines = append(p.lines, line)
		p.buffer.WriteString(line)
		p.buffer.WriteByte('\n')
		p.mu.Unlock()
	}
}

// reap waits for process exit and records the terminal state.
func (p *proc) reap() {
	err := p.cmd.Wait()

	rc := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			rc = exitErr.ExitCode()
		} else {
			rc = -1
		}
	}

	now := time.Now()
	p.mu.Lock()
	p.returnCode = &rc
	p.endTime = &now
	if p.killed {
		p.state = types.ProcessKilled
	} else if rc == 0 {
		p.state = types.ProcessCompleted
	} else {
		p.state = types.ProcessFailed
	}
	p.mu.Unlock()

	close(p.waitDone)
}

// refresh is the lazy state transition: nothing to do here beyond
// observing reap's result, which is applied under the proc mutex.
func (p *proc) refresh() {
	select {
	case <-p.waitDone:
	default:
	}
}

func (p *proc) currentState() types.ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// drainAll removes and returns all pending output lines.
func (p *proc) drainAll() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lines) == 0 {
		return ""
	}
	out := strings.Join(p.lines, "\n") + "\n"
	p.lines = nil
	return out
}
