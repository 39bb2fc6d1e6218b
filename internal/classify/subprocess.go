package classify

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/pose"
)

const (
	// DefaultIdleTimeout is how long the model process may sit unused before it is stopped.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultStallTimeout is how long an abandoned reply may stay outstanding
	// before the model process is killed and restarted.
	DefaultStallTimeout = 10 * time.Second

	// DefaultFrameTimeout bounds one Classify call on the frame path.
	DefaultFrameTimeout = 50 * time.Millisecond

	shutdownGrace = 2 * time.Second
)

// ErrBusy is returned while the model is still answering a request whose
// caller gave up.
var ErrBusy = errors.New("classifier busy")

// SubprocessConfig describes how to launch the model process.
type SubprocessConfig struct {
	Command      string
	Args         []string
	IdleTimeout  time.Duration
	StallTimeout time.Duration
}

type reply struct {
	line string
	err  error
}

// SubprocessClassifier implements Classifier by talking to a long-running
// model process. Each request is a 4-byte big-endian length followed by the
// features as big-endian float32; each reply is one JSON line.
//
// A caller whose context ends before the reply arrives gets ctx.Err(). The
// late reply is discarded by the next call; until it arrives that call gets
// ErrBusy, and once StallTimeout passes the process is killed instead.
type SubprocessClassifier struct {
	config SubprocessConfig

	// sem is a one-slot lock that can be abandoned on ctx.Done().
	sem chan struct{}

	cmd          *exec.Cmd
	stdin        io.WriteCloser
	stdout       *bufio.Reader
	started      bool
	lastUsed     time.Time
	idleTimer    *time.Timer
	pending      <-chan reply
	pendingSince time.Time
}

// NewSubprocessClassifier creates a classifier for the given command.
// The process is started lazily on first use.
func NewSubprocessClassifier(config SubprocessConfig) (*SubprocessClassifier, error) {
	if config.Command == "" {
		return nil, errors.New("classifier command is empty")
	}
	if _, err := exec.LookPath(config.Command); err != nil {
		return nil, fmt.Errorf("classifier command: %w", err)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = DefaultStallTimeout
	}

	return &SubprocessClassifier{config: config, sem: make(chan struct{}, 1)}, nil
}

type modelReply struct {
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

func (c *SubprocessClassifier) lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SubprocessClassifier) unlock() {
	<-c.sem
}

// Classify sends one feature vector and waits for the probability vector
// or the end of ctx, whichever comes first.
func (c *SubprocessClassifier) Classify(ctx context.Context, features pose.Features) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.unlock()

	if err := c.drainPending(); err != nil {
		return nil, err
	}
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}

	payload := make([]byte, 4+4*len(features))
	binary.BigEndian.PutUint32(payload, uint32(4*len(features)))
	for i, v := range features {
		binary.BigEndian.PutUint32(payload[4+4*i:], math.Float32bits(float32(v)))
	}

	if _, err := c.stdin.Write(payload); err != nil {
		c.shutdown()
		return nil, fmt.Errorf("write features: %w", err)
	}

	ch := make(chan reply, 1)
	stdout := c.stdout
	go func() {
		line, err := stdout.ReadString('\n')
		ch <- reply{line: line, err: err}
	}()

	select {
	case r := <-ch:
		return c.finish(r)
	case <-ctx.Done():
		c.pending = ch
		c.pendingSince = time.Now()
		return nil, ctx.Err()
	}
}

func (c *SubprocessClassifier) finish(r reply) ([]float64, error) {
	if r.err != nil {
		c.shutdown()
		return nil, fmt.Errorf("read response: %w", r.err)
	}

	c.lastUsed = time.Now()
	c.resetIdleTimer()

	var resp modelReply
	if err := json.Unmarshal([]byte(r.line), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("classifier: %s", resp.Error)
	}
	return resp.Probabilities, nil
}

// drainPending discards a reply left behind by an abandoned call. Replies
// stay in request order only while at most one is outstanding.
func (c *SubprocessClassifier) drainPending() error {
	if c.pending == nil {
		return nil
	}

	select {
	case r := <-c.pending:
		c.pending = nil
		if r.err != nil {
			c.shutdown()
		}
		return nil
	default:
	}

	if time.Since(c.pendingSince) < c.config.StallTimeout {
		return ErrBusy
	}
	monitoring.Logf("classifier: no reply for %s, restarting %s", time.Since(c.pendingSince).Round(time.Millisecond), c.config.Command)
	c.shutdown()
	return nil
}

// Close shuts down the model process.
func (c *SubprocessClassifier) Close() error {
	c.sem <- struct{}{}
	defer c.unlock()
	return c.shutdown()
}

func (c *SubprocessClassifier) ensureStarted() error {
	if c.started {
		return nil
	}

	c.cmd = exec.Command(c.config.Command, c.config.Args...)

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	c.cmd.Stderr = os.Stderr

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start classifier: %w", err)
	}

	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)
	c.started = true
	c.lastUsed = time.Now()

	return nil
}

// shutdown closes stdin and waits for the process. A process that is still
// owed a reply, or that ignores EOF for shutdownGrace, is killed.
func (c *SubprocessClassifier) shutdown() error {
	if !c.started {
		return nil
	}

	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}

	if c.stdin != nil {
		c.stdin.Close()
	}

	killed := false
	if c.pending != nil {
		c.cmd.Process.Kill()
		killed = true
	}

	done := make(chan error, 1)
	go func(cmd *exec.Cmd) { done <- cmd.Wait() }(c.cmd)

	var err error
	select {
	case err = <-done:
	case <-time.After(shutdownGrace):
		c.cmd.Process.Kill()
		killed = true
		err = <-done
	}
	if killed {
		err = nil
	}

	c.started = false
	c.cmd = nil
	c.stdin = nil
	c.stdout = nil
	c.pending = nil

	return err
}

// stopIfIdle stops the process unless it was used within IdleTimeout or
// still owes a reply.
func (c *SubprocessClassifier) stopIfIdle() {
	c.sem <- struct{}{}
	defer c.unlock()

	if !c.started || c.pending != nil || time.Since(c.lastUsed) < c.config.IdleTimeout {
		return
	}
	c.shutdown()
}

func (c *SubprocessClassifier) resetIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.config.IdleTimeout, c.stopIfIdle)
}
