package stream

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/process"
	"github.com/contextforge/contextforge/pkg/types"
)

const defaultRingSize = 10000

// Config describes a stream to start.
type Config struct {
	Command      string
	Cwd          string
	RingSize     int                    // default 10000 lines
	LineCallback func(types.StreamLine) // optional; runs on the reader goroutine
}

// Info is a snapshot of one stream.
type Info struct {
	StreamID  string    `json:"stream_id"`
	Command   string    `json:"command"`
	StartTime time.Time `json:"start_time"`
	LinesRead int       `json:"lines_read"`
	Finished  bool      `json:"finished"`
}

// stream is one supervised streaming subprocess.
type stream struct {
	id        string
	command   string
	startTime time.Time

	queue  chan types.StreamLine
	ring   *ringBuffer
	cancel func()

	mu        sync.Mutex
	linesRead int
	finished  bool
}

// Supervisor manages line-streamed subprocesses. A single mutex guards
// the stream map; each stream's queue is single-producer (the reader)
// and safe for multiple consumers.
type Supervisor struct {
	mu      sync.Mutex
	streams map[string]*stream
	procs   *process.Supervisor
	logger  zerolog.Logger
}

// NewSupervisor creates a stream Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		streams: make(map[string]*stream),
		procs:   process.NewSupervisor(),
		logger:  log.WithComponent("stream"),
	}
}

// StartStream launches cfg.Command and begins streaming its merged output
// line by line into the queue and the ring buffer.
func (s *Supervisor) StartStream(cfg Config) (string, error) {
	ringSize := cfg.RingSize
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}

	res, err := s.procs.LaunchProcess(process.LaunchOptions{Command: cfg.Command, Cwd: cfg.Cwd})
	if err != nil {
		return "", err
	}

	st := &stream{
		id:        uuid.New().String(),
		command:   cfg.Command,
		startTime: time.Now(),
		queue:     make(chan types.StreamLine, ringSize),
		ring:      newRingBuffer(ringSize),
	}
	terminalID := res.TerminalID
	st.cancel = func() { _, _ = s.procs.KillProcess(terminalID) }

	s.mu.Lock()
	s.streams[st.id] = st
	s.mu.Unlock()

	go s.readLoop(st, terminalID, cfg.LineCallback)

	s.logger.Debug().Str("stream_id", st.id).Str("command", cfg.Command).Msg("stream started")
	return st.id, nil
}

// readLoop polls the process for output, splitting into StreamLines.
func (s *Supervisor) readLoop(st *stream, terminalID int, callback func(types.StreamLine)) {
	defer close(st.queue)

	lineNo := 0
	emit := func(text string) {
		lineNo++
		line := types.StreamLine{Text: text, LineNumber: lineNo, Timestamp: time.Now()}

		st.ring.push(line)
		st.mu.Lock()
		st.linesRead++
		st.mu.Unlock()
		metrics.StreamLines.Inc()

		if callback != nil {
			s.invokeCallback(st.id, callback, line)
		}
		select {
		case st.queue <- line:
		default:
			// Queue full: shed the oldest line, matching the ring's drop
			// policy, so a consumer-less stream cannot stall the reader.
			select {
			case <-st.queue:
			default:
			}
			st.queue <- line
		}
	}

	for {
		out, state, err := s.procs.ReadProcess(terminalID, true, 100*time.Millisecond)
		if err != nil {
			break
		}
		if out != "" {
			scanner := bufio.NewScanner(strings.NewReader(out))
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				emit(scanner.Text())
			}
		}
		if state != types.ProcessRunning {
			// Final drain already happened inside ReadProcess(wait=true).
			break
		}
	}

	st.mu.Lock()
	st.finished = true
	st.mu.Unlock()
}

// invokeCallback shields the stream from callback panics.
func (s *Supervisor) invokeCallback(streamID string, callback func(types.StreamLine), line types.StreamLine) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("stream_id", streamID).
				Interface("panic", r).
				Msg("line callback panicked")
		}
	}()
	callback(line)
}

// ReadLines blocks up to timeout for the first line, then drains
// non-blockingly up to max lines. max <= 0 means no bound.
func (s *Supervisor) ReadLines(streamID string, max int, timeout time.Duration) ([]types.StreamLine, error) {
	st, err := s.get(streamID)
	if err != nil {
		return nil, err
	}

	var lines []types.StreamLine

	select {
	case line, ok := <-st.queue:
		if !ok {
			return lines, nil
		}
		lines = append(lines, line)
	case <-time.After(timeout):
		return lines, nil
	}

	for max <= 0 || len(lines) < max {
		select {
		case line, ok := <-st.queue:
			if !ok {
				return lines, nil
			}
			lines = append(lines, line)
		default:
			return lines, nil
		}
	}
	return lines, nil
}

// IterLines returns a finite, non-restartable sequence of lines that ends
// once the process exits and the queue is drained. Lines consumed here
// are not seen by ReadLines and vice versa.
func (s *Supervisor) IterLines(streamID string) (<-chan types.StreamLine, error) {
	st, err := s.get(streamID)
	if err != nil {
		return nil, err
	}
	return st.queue, nil
}

// GetBuffer returns a snapshot of the ring buffer: the most recent lines
// up to the ring capacity, oldest first.
func (s *Supervisor) GetBuffer(streamID string) ([]types.StreamLine, error) {
	st, err := s.get(streamID)
	if err != nil {
		return nil, err
	}
	return st.ring.snapshot(), nil
}

// StopStream kills the underlying process. The reader drains remaining
// output and closes the queue.
func (s *Supervisor) StopStream(streamID string) error {
	st, err := s.get(streamID)
	if err != nil {
		return err
	}
	st.cancel()
	return nil
}

// List snapshots all streams.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.streams))
	for _, st := range s.streams {
		st.mu.Lock()
		infos = append(infos, Info{
			StreamID:  st.id,
			Command:   st.command,
			StartTime: st.startTime,
			LinesRead: st.linesRead,
			Finished:  st.finished,
		})
		st.mu.Unlock()
	}
	return infos
}

func (s *Supervisor) get(streamID string) (*stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: stream %s", types.ErrNotFound, streamID)
	}
	return st, nil
}

// ringBuffer is a fixed-size line buffer dropping the oldest entry past
// capacity.
type ringBuffer struct {
	mu    sync.Mutex
	lines []types.StreamLine
	size  int
	start int
	count int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		lines: make([]types.StreamLine, size),
		size:  size,
	}
}

func (r *ringBuffer) push(line types.StreamLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < r.size {
		r.lines[(r.start+r.count)%r.size] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % r.size
}

func (r *ringBuffer) snapshot() []types.StreamLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.StreamLine, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.start+i)%r.size]
	}
	return out
}
