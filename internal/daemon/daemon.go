// Package daemon detaches the root-spawned helper from the elevation command
package daemon

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sevlyar/go-daemon"
)

// DaemonEnvVar marks the detached child process
const DaemonEnvVar = "TOUCHBRIDGE_DAEMON_CHILD"

// context of the last Detach, kept for Release
var current *daemon.Context

// Options controls the detached process
type Options struct {
	PidFile string // empty disables the pid file
	LogFile string // empty discards output
}

// Detach re-executes the current command in the background.
// A nil process means we are the child; a non-nil one is returned to the parent.
func Detach(opts Options) (*os.Process, error) {
	ctx := &daemon.Context{
		PidFileName: opts.PidFile,
		PidFilePerm: 0644,
		LogFileName: opts.LogFile,
		LogFilePerm: 0640,
		WorkDir:     "/",
		Umask:       027,
		Args:        os.Args,
		Env:         append(os.Environ(), fmt.Sprintf("%s=1", DaemonEnvVar)),
	}

	child, err := ctx.Reborn()
	if err != nil {
		return nil, fmt.Errorf("failed to daemonize: %w", err)
	}
	if child == nil {
		current = ctx
	}
	return child, nil
}

// Release unlocks and removes the pid file written by the detached child
func Release() error {
	if current == nil {
		return nil
	}
	err := current.Release()
	current = nil
	return err
}

// IsChild returns true in the detached child process
func IsChild() bool {
	return os.Getenv(DaemonEnvVar) == "1"
}

// Stop sends SIGTERM to the process recorded in pidFile
func Stop(pidFile string) error {
	pid, err := daemon.ReadPidFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("helper is not running (no pid file at %s)", pidFile)
		}
		return fmt.Errorf("failed to read pid file: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find helper process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop helper process %d: %w", pid, err)
	}
	return nil
}
