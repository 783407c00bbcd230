package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrChannelClosed is reported when the engine's stdio is no longer usable,
// either because the channel was closed or because the process exited.
var ErrChannelClosed = errors.New("engine channel closed")

// ErrHandshakeTimeout is wrapped by LaunchError when the engine did not
// finish its handshake in time.
var ErrHandshakeTimeout = errors.New("engine handshake timed out")

// LaunchError reports a failed launch: the executable could not be started
// or the handshake did not complete. The process is never left running.
type LaunchError struct {
	Path   string
	Stderr []string
	Err    error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launching engine %s: %v", e.Path, e.Err)
	if len(e.Stderr) > 0 {
		msg += " (stderr: " + strings.Join(e.Stderr, "; ") + ")"
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }
