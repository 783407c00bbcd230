// Package process owns engine child processes: spawning, line framing over
// stdio, the USI handshake, and guaranteed termination.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/usi"
)

// Channel is the stdio connection to one running engine. Outbound lines are
// written with Send; inbound lines are parsed and delivered on Events.
type Channel struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    io.ReadCloser
	name      string
	quitGrace time.Duration

	events    chan usi.Event
	exited    chan struct{}
	stderrBuf *LineBuffer

	writeMu sync.Mutex
	mu      sync.RWMutex
	status  Status
	exitErr error

	closeOnce sync.Once
	readers   sync.WaitGroup
}

type channelParams struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	stderr      io.ReadCloser
	name        string
	quitGrace   time.Duration
	stderrLines int
	eventBuffer int
}

func newChannel(p channelParams) *Channel {
	return &Channel{
		ctx:       p.ctx,
		cancel:    p.cancel,
		cmd:       p.cmd,
		stdin:     p.stdin,
		stdout:    p.stdout,
		stderr:    p.stderr,
		name:      p.name,
		quitGrace: p.quitGrace,
		events:    make(chan usi.Event, p.eventBuffer),
		exited:    make(chan struct{}),
		stderrBuf: NewLineBuffer(p.stderrLines),
		status:    StatusRunning,
	}
}

func (c *Channel) start() {
	c.readers.Add(2)
	go c.readStdout()
	go c.readStderr()
	go c.waitForExit()
}

// Name returns the name used in logs.
func (c *Channel) Name() string { return c.name }

// PID returns the OS process id.
func (c *Channel) PID() int {
	if c.cmd.Process == nil {
		return -1
	}
	return c.cmd.Process.Pid
}

// Status returns the current lifecycle state.
func (c *Channel) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Events returns parsed engine output, one event per non-empty line. The
// channel is closed once the process's stdout ends.
func (c *Channel) Events() <-chan usi.Event {
	return c.events
}

// Exited is closed when the process has exited.
func (c *Channel) Exited() <-chan struct{} {
	return c.exited
}

// StderrLines returns the most recent stderr output.
func (c *Channel) StderrLines() []string {
	return c.stderrBuf.Lines()
}

// Err returns ErrChannelClosed wrapped with the exit status when the process
// exited without being closed, and nil otherwise.
func (c *Channel) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != StatusCrashed {
		return nil
	}
	msg := fmt.Sprintf("%s exited", c.name)
	if c.exitErr != nil {
		msg = fmt.Sprintf("%s exited: %v", c.name, c.exitErr)
	}
	if lines := c.stderrBuf.Lines(); len(lines) > 0 {
		msg += " (stderr: " + strings.Join(lines, "; ") + ")"
	}
	return fmt.Errorf("%w: %s", ErrChannelClosed, msg)
}

// Send writes one command line. It fails with ErrChannelClosed once the
// channel is closing or the process has exited.
func (c *Channel) Send(line string) error {
	if c.Status() != StatusRunning {
		return ErrChannelClosed
	}
	return c.write(line)
}

func (c *Channel) write(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	log.Debug(log.CatUSI, "send", "engine", c.name, "line", line)
	if _, err := io.WriteString(c.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// Close asks the engine to quit, kills it if it is still running after the
// grace period, and waits for the readers to finish. No events are delivered
// after Close returns. Close is idempotent.
func (c *Channel) Close() error {
	c.shutdown(true)
	return nil
}

// Kill terminates the process immediately and waits like Close.
func (c *Channel) Kill() {
	c.shutdown(false)
}

func (c *Channel) shutdown(graceful bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.status == StatusRunning {
			c.status = StatusClosing
		}
		c.mu.Unlock()

		if graceful {
			_ = c.write(usi.Quit())
			_ = c.stdin.Close()
			timer := time.NewTimer(c.quitGrace)
			select {
			case <-c.exited:
			case <-timer.C:
				log.Warn(log.CatProc, "Engine did not quit in time, killing",
					"name", c.name, "grace", c.quitGrace)
			}
			timer.Stop()
		}

		c.kill()
		<-c.exited
		c.readers.Wait()
		for range c.events {
		}
		log.Debug(log.CatProc, "Engine closed", "name", c.name)
	})
}

// kill also closes the output pipes so that readers blocked on a pipe held
// open by a child of the engine return.
func (c *Channel) kill() {
	c.cancel()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.stdout.Close()
	_ = c.stderr.Close()
}

func (c *Channel) readStdout() {
	defer c.readers.Done()
	defer close(c.events)

	scanner := bufio.NewScanner(c.stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		log.Debug(log.CatUSI, "recv", "engine", c.name, "line", line)

		select {
		case c.events <- usi.Parse(line):
		case <-c.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug(log.CatProc, "stdout scanner error", "name", c.name, "error", err)
	}
}

func (c *Channel) readStderr() {
	defer c.readers.Done()

	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug(log.CatProc, "STDERR", "name", c.name, "line", line)
		c.stderrBuf.Write(line)
	}
}

// waitForExit reaps the process once both readers have reached EOF. Wait
// closes the pipes and must not run before that.
func (c *Channel) waitForExit() {
	c.readers.Wait()
	err := c.cmd.Wait()

	c.mu.Lock()
	if c.status == StatusClosing {
		c.status = StatusExited
	} else {
		c.status = StatusCrashed
		c.exitErr = err
		log.Warn(log.CatProc, "Engine exited unexpectedly", "name", c.name, "error", err)
	}
	c.mu.Unlock()
	close(c.exited)
}
