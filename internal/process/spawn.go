package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/zjrosen/usibridge/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute the
// engine executable.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// DefaultQuitGrace is how long Close waits for the engine to exit after
// "quit" before killing it.
const DefaultQuitGrace = 5 * time.Second

// DefaultStderrLines is how many stderr lines a channel keeps.
const DefaultStderrLines = 50

// SpawnBuilder provides a fluent API for starting an engine process.
type SpawnBuilder struct {
	ctx            context.Context
	execPath       string
	args           []string
	workDir        string
	env            []string
	name           string
	quitGrace      time.Duration
	stderrLines    int
	eventBuffer    int
	commandFactory CommandFactoryFunc
}

// NewSpawnBuilder creates a SpawnBuilder. The process is killed when ctx is
// cancelled, so ctx should live as long as the engine.
func NewSpawnBuilder(ctx context.Context) *SpawnBuilder {
	return &SpawnBuilder{
		ctx:         ctx,
		quitGrace:   DefaultQuitGrace,
		stderrLines: DefaultStderrLines,
		eventBuffer: 256,
	}
}

// WithExecutable sets the executable path and arguments.
func (b *SpawnBuilder) WithExecutable(path string, args []string) *SpawnBuilder {
	b.execPath = path
	b.args = args
	return b
}

// WithWorkDir sets the working directory. It defaults to the directory of
// the executable, where engines expect to find their evaluation files.
func (b *SpawnBuilder) WithWorkDir(dir string) *SpawnBuilder {
	b.workDir = dir
	return b
}

// WithEnv sets additional "KEY=VALUE" variables appended to os.Environ().
func (b *SpawnBuilder) WithEnv(env []string) *SpawnBuilder {
	b.env = env
	return b
}

// WithName sets the name used in logs.
func (b *SpawnBuilder) WithName(name string) *SpawnBuilder {
	b.name = name
	return b
}

// WithQuitGrace sets how long Close waits before killing the process.
func (b *SpawnBuilder) WithQuitGrace(d time.Duration) *SpawnBuilder {
	if d > 0 {
		b.quitGrace = d
	}
	return b
}

// WithStderrLines sets how many stderr lines are kept for error messages.
func (b *SpawnBuilder) WithStderrLines(n int) *SpawnBuilder {
	if n > 0 {
		b.stderrLines = n
	}
	return b
}

// WithEventBuffer sets the capacity of the parsed event channel.
func (b *SpawnBuilder) WithEventBuffer(n int) *SpawnBuilder {
	if n > 0 {
		b.eventBuffer = n
	}
	return b
}

// WithCommandFactory sets a custom command factory for testing.
func (b *SpawnBuilder) WithCommandFactory(fn CommandFactoryFunc) *SpawnBuilder {
	b.commandFactory = fn
	return b
}

// Build creates the pipes, starts the process and its reader goroutines.
// On error all created resources are released.
func (b *SpawnBuilder) Build() (*Channel, error) {
	if b.execPath == "" {
		return nil, fmt.Errorf("spawn builder: executable path is required")
	}
	name := b.name
	if name == "" {
		name = filepath.Base(b.execPath)
	}
	workDir := b.workDir
	if workDir == "" {
		workDir = filepath.Dir(b.execPath)
	}

	procCtx, cancel := context.WithCancel(b.ctx)

	var (
		cmd    *exec.Cmd
		stdin  io.WriteCloser
		stdout io.ReadCloser
		stderr io.ReadCloser
	)
	cleanup := func() {
		cancel()
		for _, c := range []io.Closer{stdin, stdout, stderr} {
			if c != nil {
				_ = c.Close()
			}
		}
	}

	if b.commandFactory != nil {
		cmd = b.commandFactory(procCtx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- the executable comes from the operator's engine definition
		cmd = exec.CommandContext(procCtx, b.execPath, b.args...)
	}
	cmd.Dir = workDir
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}

	var err error
	if stdin, err = cmd.StdinPipe(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stdin pipe: %w", err)
	}
	if stdout, err = cmd.StdoutPipe(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stdout pipe: %w", err)
	}
	if stderr, err = cmd.StderrPipe(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stderr pipe: %w", err)
	}

	log.Debug(log.CatProc, "Spawning engine",
		"name", name,
		"execPath", b.execPath,
		"workDir", workDir)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to start %s: %w", name, err)
	}

	log.Debug(log.CatProc, "Engine started", "name", name, "pid", cmd.Process.Pid)

	c := newChannel(channelParams{
		ctx:         procCtx,
		cancel:      cancel,
		cmd:         cmd,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		name:        name,
		quitGrace:   b.quitGrace,
		stderrLines: b.stderrLines,
		eventBuffer: b.eventBuffer,
	})
	c.start()
	return c, nil
}
