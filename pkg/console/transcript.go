// Package console assembles agent runs from the server's responses and
// renders them in a terminal.
//
// A Run starts pending and makes exactly one transition, to succeeded or
// failed, decided by the success flag of the terminal payload. Streamed
// text is appended while the run is pending and never rewritten.
package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/entrhq/browserpilot/pkg/stream"
	"github.com/entrhq/browserpilot/pkg/types"
)

// Status is the display state of a run.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrStreamTruncated is recorded when a stream ends without a final event.
var ErrStreamTruncated = errors.New("stream ended before the final event")

// Run is one agent run as seen by the client.
type Run struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	Success      *bool
	Task         string
	ServerTarget string
	RunID        string
	Response     string
	Error        string
	ErrorCode    types.ErrorCode
	Steps        []types.Step
	Executed     []types.ExecutedCode
	Usage        types.Usage
	StepCount    int
	ToolCalls    int
	ToolFailures int

	// Timestamp is the client-assigned correlation key.
	Timestamp int64

	mu  sync.Mutex
	now func() time.Time
}

// RunView is a consistent copy of a run for rendering.
type RunView struct {
	Status       Status
	Elapsed      time.Duration
	Task         string
	ServerTarget string
	RunID        string
	Response     string
	Error        string
	ErrorCode    types.ErrorCode
	Steps        []types.Step
	Executed     []types.ExecutedCode
	Usage        types.Usage
	StepCount    int
	ToolCalls    int
	ToolFailures int
}

// View copies the run's current state.
func (r *Run) View() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.FinishedAt
	if end.IsZero() {
		end = r.now()
	}
	return RunView{
		Status:       r.status(),
		Elapsed:      end.Sub(r.StartedAt),
		Task:         r.Task,
		ServerTarget: r.ServerTarget,
		RunID:        r.RunID,
		Response:     r.Response,
		Error:        r.Error,
		ErrorCode:    r.ErrorCode,
		Steps:        r.Steps,
		Executed:     r.Executed,
		Usage:        r.Usage,
		StepCount:    r.StepCount,
		ToolCalls:    r.ToolCalls,
		ToolFailures: r.ToolFailures,
	}
}

// Status derives the display state from the success flag.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status()
}

func (r *Run) status() Status {
	switch {
	case r.Success == nil:
		return StatusPending
	case *r.Success:
		return StatusSucceeded
	default:
		return StatusFailed
	}
}

// Apply folds one stream frame into the run. Frames after the terminal
// transition are ignored. It returns true when the frame was final.
func (r *Run) Apply(frame *stream.Frame) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status() != StatusPending {
		return false, nil
	}

	switch frame.Event {
	case "init":
		r.RunID = frame.Get("runId").String()
		if target := frame.Get("serverTarget").String(); target != "" {
			r.ServerTarget = target
		}
	case "text-delta":
		r.Response += frame.Get("text").String()
	case "start-step":
		r.StepCount++
	case "tool-call":
		r.ToolCalls++
	case "tool-error":
		r.ToolFailures++
	case "tool-result":
		if !frame.Get("success").Bool() {
			r.ToolFailures++
		}
	case "final":
		var result types.RunResult
		if err := frame.Decode(&result); err != nil {
			r.fail(fmt.Sprintf("invalid final event: %v", err))
			return true, err
		}
		r.complete(&result)
		return true, nil
	}
	return false, nil
}

// Complete records the terminal result of a run.
func (r *Run) Complete(result *types.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status() != StatusPending {
		return
	}
	r.complete(result)
}

func (r *Run) complete(result *types.RunResult) {
	success := result.Success
	r.Success = &success
	r.FinishedAt = r.now()
	r.Response = result.Response
	r.Steps = result.Steps
	r.StepCount = result.StepCount
	r.Executed = result.ExecutedCodes
	r.Usage = result.Usage
	r.Error = result.Error
	r.ErrorCode = result.ErrorCode
	if result.RunID != "" {
		r.RunID = result.RunID
	}
	if result.ServerTarget != "" {
		r.ServerTarget = result.ServerTarget
	}
	if !success && r.Error == "" {
		r.Error = "agent run failed"
	}
}

// Fail marks a pending run as failed with message.
func (r *Run) Fail(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status() != StatusPending {
		return
	}
	r.fail(message)
}

func (r *Run) fail(message string) {
	failed := false
	r.Success = &failed
	r.FinishedAt = r.now()
	r.Error = message
}

// Follow reads an event stream into run, calling onFrame after each frame
// is applied. A stream that ends without a final event fails the run.
func Follow(body io.Reader, run *Run, onFrame func(*stream.Frame)) error {
	dec := stream.NewDecoder(body)
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			run.Fail(ErrStreamTruncated.Error())
			return ErrStreamTruncated
		}
		if err != nil {
			run.Fail(err.Error())
			return fmt.Errorf("read event stream: %w", err)
		}

		final, err := run.Apply(frame)
		if onFrame != nil {
			onFrame(frame)
		}
		if err != nil {
			return err
		}
		if final {
			return nil
		}
	}
}

// DecodeResult reads a synchronous response body into run. Bodies that are
// not a run result, such as {error, code} rejections, fail the run with
// their error message.
func DecodeResult(body io.Reader, run *Run) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		run.Fail(err.Error())
		return err
	}

	var probe struct {
		Success *bool           `json:"success"`
		Error   string          `json:"error"`
		Code    types.ErrorCode `json:"code"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		run.Fail(fmt.Sprintf("invalid response: %v", err))
		return err
	}
	if probe.Success == nil {
		msg := probe.Error
		if msg == "" {
			msg = "request rejected"
		}
		run.Fail(msg)
		run.mu.Lock()
		run.ErrorCode = probe.Code
		run.mu.Unlock()
		return nil
	}

	var result types.RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		run.Fail(fmt.Sprintf("invalid response: %v", err))
		return err
	}
	run.Complete(&result)
	return nil
}

// Transcript is the ordered list of runs, newest first.
type Transcript struct {
	runs []*Run
	now  func() time.Time
	mu   sync.Mutex
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Begin inserts a pending run for task at the top of the transcript.
func (t *Transcript) Begin(task, serverTarget string) *Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	started := t.now()
	ts := started.UnixMilli()
	if len(t.runs) > 0 && ts <= t.runs[0].Timestamp {
		ts = t.runs[0].Timestamp + 1
	}
	run := &Run{
		Task:         task,
		ServerTarget: serverTarget,
		StartedAt:    started,
		Timestamp:    ts,
		now:          t.now,
	}
	t.runs = append([]*Run{run}, t.runs...)
	return run
}

// Runs returns the runs, newest first.
func (t *Transcript) Runs() []*Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Run(nil), t.runs...)
}

// Find returns the run with the given correlation key.
func (t *Transcript) Find(timestamp int64) (*Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, run := range t.runs {
		if run.Timestamp == timestamp {
			return run, true
		}
	}
	return nil, false
}
