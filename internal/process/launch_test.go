package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/usi"
)

// fakeEngine is a minimal USI engine written in sh.
const fakeEngine = `
echo $$ > "$(dirname "$0")/pid"
while read -r cmd rest; do
  case "$cmd" in
    usi)
      echo "id name FakeEngine"
      echo "id author Tester"
      echo "option name USI_Hash type spin default 256 min 1 max 1024"
      echo "option name USI_Ponder type check default true"
      echo "option name Clear Hash type button"
      echo "usiok"
      ;;
    isready) echo "readyok" ;;
    setoption) echo "info string set $rest" ;;
    crash) echo "dying" >&2; exit 3 ;;
    quit) exit 0 ;;
  esac
done
`

// writeEngine writes an executable sh script into a temp dir.
func writeEngine(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func readPID(t *testing.T, enginePath string) int {
	t.Helper()
	var data []byte
	require.Eventually(t, func() bool {
		var err error
		data, err = os.ReadFile(filepath.Join(filepath.Dir(enginePath), "pid"))
		return err == nil && len(strings.TrimSpace(string(data))) > 0
	}, 2*time.Second, 10*time.Millisecond)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

func processGone(pid int) bool {
	return syscall.Kill(pid, 0) != nil
}

// nextEvent returns the first event of type T, skipping others.
func nextEvent[T usi.Event](t *testing.T, ch *Channel) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			require.True(t, ok, "events channel closed")
			if got, match := ev.(T); match {
				return got
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestLaunch_Handshake(t *testing.T) {
	path := writeEngine(t, fakeEngine)

	ch, hs, err := Launch(context.Background(), Config{Path: path, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer ch.Close()

	require.Equal(t, "FakeEngine", hs.Name)
	require.Equal(t, "Tester", hs.Author)
	require.Len(t, hs.Options, 3)
	hash := hs.Options[engine.OptionHash].(*engine.SpinOption)
	require.Equal(t, 1, hash.Order)
	require.Equal(t, 1024, *hash.Max)
	require.Equal(t, 3, hs.Options["Clear Hash"].Declared().Order)

	d := hs.Descriptor(path)
	require.NoError(t, engine.Validate(d))
	require.True(t, d.PonderEnabled())
	require.Equal(t, "FakeEngine", d.DisplayName())

	require.NoError(t, ch.Send(usi.IsReady()))
	nextEvent[usi.ReadyOK](t, ch)
}

func TestLaunch_SendsResolvableOptions(t *testing.T) {
	path := writeEngine(t, fakeEngine)
	value := 512

	ch, _, err := Launch(context.Background(), Config{
		Path:    path,
		Timeout: 5 * time.Second,
		Options: engine.Options{
			engine.OptionHash: &engine.SpinOption{Decl: engine.Decl{Name: engine.OptionHash}, Value: &value},
			"Clear Hash":      &engine.ButtonOption{Decl: engine.Decl{Name: "Clear Hash"}},
			"Unset":           &engine.StringOption{Decl: engine.Decl{Name: "Unset"}},
		},
	})
	require.NoError(t, err)
	defer ch.Close()

	info := nextEvent[usi.Info](t, ch)
	require.Equal(t, "set name USI_Hash value 512", info.String)

	require.NoError(t, ch.Send(usi.IsReady()))
	nextEvent[usi.ReadyOK](t, ch)
}

func TestLaunch_TimeoutKillsProcess(t *testing.T) {
	path := writeEngine(t, `
echo $$ > "$(dirname "$0")/pid"
while read -r line; do :; done
`)

	start := time.Now()
	_, _, err := Launch(context.Background(), Config{Path: path, Timeout: time.Second})
	elapsed := time.Since(start)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	require.Less(t, elapsed, 3*time.Second)
	require.GreaterOrEqual(t, elapsed, 900*time.Millisecond)

	pid := readPID(t, path)
	require.True(t, processGone(pid), "engine process must be terminated")
}

func TestLaunch_ExitBeforeHandshake(t *testing.T) {
	path := writeEngine(t, `echo "no eval file" >&2; exit 1`)

	_, _, err := Launch(context.Background(), Config{Path: path, Timeout: 5 * time.Second})
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.ErrorIs(t, err, ErrChannelClosed)
	require.False(t, errors.Is(err, ErrHandshakeTimeout))
}

func TestLaunch_MissingExecutable(t *testing.T) {
	_, _, err := Launch(context.Background(), Config{
		Path:    filepath.Join(t.TempDir(), "missing"),
		Timeout: time.Second,
	})
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Contains(t, err.Error(), "missing")
}

func TestLaunch_CancelledContext(t *testing.T) {
	path := writeEngine(t, `while read -r line; do :; done`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Launch(ctx, Config{Path: path})
	require.ErrorIs(t, err, context.Canceled)
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	path := writeEngine(t, fakeEngine)
	ch, _, err := Launch(context.Background(), Config{Path: path, Timeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	require.Equal(t, StatusExited, ch.Status())
	require.NoError(t, ch.Err())
	require.ErrorIs(t, ch.Send(usi.IsReady()), ErrChannelClosed)

	_, open := <-ch.Events()
	require.False(t, open, "no events after close")
}

func TestChannel_CloseKillsUnresponsiveEngine(t *testing.T) {
	path := writeEngine(t, `
echo $$ > "$(dirname "$0")/pid"
while read -r cmd rest; do
  case "$cmd" in
    usi) echo "usiok" ;;
  esac
done
exec sleep 30
`)
	ch, _, err := Launch(context.Background(), Config{
		Path:      path,
		Timeout:   5 * time.Second,
		QuitGrace: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	pid := readPID(t, path)

	start := time.Now()
	require.NoError(t, ch.Close())
	require.Less(t, time.Since(start), 3*time.Second)
	require.True(t, processGone(pid))
}

func TestChannel_CrashSurfacesError(t *testing.T) {
	path := writeEngine(t, fakeEngine)
	ch, _, err := Launch(context.Background(), Config{Path: path, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send("crash"))
	select {
	case <-ch.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not exit")
	}

	require.Equal(t, StatusCrashed, ch.Status())
	require.ErrorIs(t, ch.Err(), ErrChannelClosed)
	require.Contains(t, ch.Err().Error(), "exit status 3")
	require.ErrorIs(t, ch.Send(usi.IsReady()), ErrChannelClosed)
}

func TestSpawnBuilder_RequiresExecutable(t *testing.T) {
	_, err := NewSpawnBuilder(context.Background()).Build()
	require.Error(t, err)
	require.Contains(t, err.Error(), "executable path is required")
}

func TestSpawnBuilder_DefaultsWorkDirToExecutableDir(t *testing.T) {
	path := writeEngine(t, `pwd; read -r line`)
	ch, err := NewSpawnBuilder(context.Background()).
		WithExecutable(path, nil).
		Build()
	require.NoError(t, err)
	defer ch.Close()

	ev := nextEvent[usi.Unknown](t, ch)
	want, err := filepath.EvalSymlinks(filepath.Dir(path))
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(ev.Line)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLaunch_StderrLinesBoundLaunchError(t *testing.T) {
	path := writeEngine(t, `
for i in 1 2 3 4 5; do echo "line $i" >&2; done
exit 1
`)
	_, _, err := Launch(context.Background(), Config{
		Path:        path,
		Timeout:     5 * time.Second,
		StderrLines: 2,
	})
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, []string{"line 4", "line 5"}, launchErr.Stderr)
}

func TestLaunch_WorkDirAndEnv(t *testing.T) {
	path := writeEngine(t, `
while read -r cmd rest; do
  case "$cmd" in
    usi) echo "id name $ENGINE_FLAVOR"; echo "usiok" ;;
    isready) echo "info string $(pwd)"; echo "readyok" ;;
    quit) exit 0 ;;
  esac
done
`)
	dir := t.TempDir()

	ch, hs, err := Launch(context.Background(), Config{
		Path:    path,
		Timeout: 5 * time.Second,
		WorkDir: dir,
		Env:     []string{"ENGINE_FLAVOR=Aperyish"},
	})
	require.NoError(t, err)
	defer ch.Close()
	require.Equal(t, "Aperyish", hs.Name)

	require.NoError(t, ch.Send(usi.IsReady()))
	info := nextEvent[usi.Info](t, ch)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(info.String)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestChannel_KeepsLastLinesOfExitingEngine(t *testing.T) {
	path := writeEngine(t, `
read -r line
echo "info string bye"
echo "fatal: eval file missing" >&2
exit 2
`)
	ch, err := NewSpawnBuilder(context.Background()).
		WithExecutable(path, nil).
		Build()
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Send("go"))
	require.Equal(t, "bye", nextEvent[usi.Info](t, ch).String)
	select {
	case <-ch.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not exit")
	}
	require.Equal(t, []string{"fatal: eval file missing"}, ch.StderrLines())
	require.Contains(t, ch.Err().Error(), "eval file missing")
}
