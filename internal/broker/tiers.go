package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/helper"
	"github.com/bnema/touchbridge/internal/ipc"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/network"
	"github.com/bnema/touchbridge/internal/protocol"
)

// HeartbeatInterval is how often remote handles are pinged for liveness
const HeartbeatInterval = time.Second

var (
	defaultOnce   sync.Once
	defaultBroker *Broker
)

// Default returns the process-wide broker built from the loaded configuration
func Default() *Broker {
	defaultOnce.Do(func() {
		defaultBroker = New(OptionsFromConfig(config.Get()))
	})
	return defaultBroker
}

// OptionsFromConfig wires the real tiers: uinput in-process, unix socket probe,
// SSH alternate broker and the elevation command
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Tiers: Tiers{
			Elevated:  helper.IsElevated,
			InProcess: func() (protocol.Handle, error) { return helper.NewFromConfig(c) },
			Probe: func(ctx context.Context) (protocol.Handle, error) {
				return ProbeSocket(ctx, c.Broker.SocketPath, time.Duration(c.Broker.ProbeTimeoutMs)*time.Millisecond)
			},
			Alternate: func(ctx context.Context) (protocol.Handle, error) {
				return bindSSH(ctx, c.Broker)
			},
			Spawn: func(ctx context.Context) error {
				return SpawnHelper(ctx, c.Broker.ElevateCommand, c.Broker.SocketPath)
			},
		},
		UseAlternate: c.Broker.UseAlternate,
		SpawnTimeout: time.Duration(c.Broker.SpawnTimeoutMs) * time.Millisecond,
	}
}

// ProbeSocket connects to a running helper and checks that it answers
func ProbeSocket(ctx context.Context, path string, timeout time.Duration) (protocol.Handle, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := ipc.Dial(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, err
	}

	client.StartHeartbeat(HeartbeatInterval)
	return client, nil
}

func bindSSH(ctx context.Context, c config.BrokerConfig) (protocol.Handle, error) {
	client, err := network.DialSSH(ctx, network.DialOptions{
		Address:         c.SSHAddress,
		User:            c.SSHUser,
		PrivateKeyPath:  c.SSHPrivateKey,
		HostFingerprint: c.SSHHostFingerprint,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, err
	}

	client.StartHeartbeat(HeartbeatInterval)
	return client, nil
}

// SpawnHelper runs "<elevate> <this executable> helper --detach --socket <path>".
// The detached helper outlives the command.
func SpawnHelper(ctx context.Context, elevate, socketPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	args := append(strings.Fields(elevate), exe, "helper", "--detach", "--socket", socketPath)
	if path := config.GetConfigPath(); path != "" {
		args = append(args, "--config", path)
	}

	logger.Debugf("Spawning helper: %s", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	return classifySpawn(string(output), err)
}

// classifySpawn tells a refused elevation apart from a helper that failed to start
func classifySpawn(output string, err error) error {
	if err == nil {
		return nil
	}

	output = strings.TrimSpace(output)

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("failed to run elevation command: %w", err)
	}

	lower := strings.ToLower(output)
	denied := strings.Contains(lower, "password is required") ||
		strings.Contains(lower, "not in the sudoers") ||
		strings.Contains(lower, "not allowed to") ||
		strings.Contains(lower, "incorrect password") ||
		strings.Contains(lower, "not authorized")

	// pkexec: 126 dismissed, 127 not authorized
	if code := exitErr.ExitCode(); code == 126 || code == 127 {
		denied = true
	}

	if denied {
		return fmt.Errorf("%w: %s", ErrElevationDenied, output)
	}
	return fmt.Errorf("helper failed to start: %s: %w", output, err)
}
