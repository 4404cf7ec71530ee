// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Broker configuration (unprivileged side)
	Broker BrokerConfig `mapstructure:"broker"`

	// Helper configuration (privileged side)
	Helper HelperConfig `mapstructure:"helper"`

	// Shared runtime configuration served by the helper
	Shared SharedConfig `mapstructure:"shared"`

	// Mouse aim session configuration
	Aim AimConfig `mapstructure:"aim"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrokerConfig controls how the unprivileged side reaches a helper
type BrokerConfig struct {
	SocketPath     string `mapstructure:"socket_path"`
	UseAlternate   bool   `mapstructure:"use_alternate"`   // Bind over SSH instead of spawning a root helper
	ElevateCommand string `mapstructure:"elevate_command"` // e.g. "sudo -n" or "pkexec"
	SpawnTimeoutMs int    `mapstructure:"spawn_timeout_ms"`
	ProbeTimeoutMs int    `mapstructure:"probe_timeout_ms"`

	// SSH (alternate broker) settings
	SSHAddress    string `mapstructure:"ssh_address"`
	SSHPrivateKey string `mapstructure:"ssh_private_key"`
	SSHUser       string `mapstructure:"ssh_user"`

	// SHA256 fingerprint of the helper host key, empty skips the check
	SSHHostFingerprint string `mapstructure:"ssh_host_fingerprint"`
}

// HelperConfig contains privileged helper settings
type HelperConfig struct {
	SocketPath    string `mapstructure:"socket_path"`
	SocketMode    uint32 `mapstructure:"socket_mode"`
	UinputPath    string `mapstructure:"uinput_path"`
	DeviceName    string `mapstructure:"device_name"`
	DisplayWidth  int    `mapstructure:"display_width"`
	DisplayHeight int    `mapstructure:"display_height"`
	DetectDisplay bool   `mapstructure:"detect_display"` // Ask wlr-randr, display_* is the fallback
	PidFile       string `mapstructure:"pid_file"` // Written by the detached helper

	// SSH endpoint for the alternate broker tier
	SSHEnabled     bool     `mapstructure:"ssh_enabled"`
	SSHAddress     string   `mapstructure:"ssh_address"`
	SSHHostKeyPath string   `mapstructure:"ssh_host_key_path"`
	SSHGrantedKeys []string `mapstructure:"ssh_granted_keys"` // SHA256 fingerprints granted beforehand
}

// SharedConfig holds values the helper hands out through the injection protocol
type SharedConfig struct {
	SwipeDelayMs int `mapstructure:"swipe_delay_ms"`
}

// AimConfig describes one mouse aim session
type AimConfig struct {
	XCenter       float64 `mapstructure:"x_center"`
	YCenter       float64 `mapstructure:"y_center"`
	XSensitivity  float64 `mapstructure:"x_sensitivity"`
	YSensitivity  float64 `mapstructure:"y_sensitivity"`
	NonLinear     bool    `mapstructure:"non_linear"`
	LimitedBounds bool    `mapstructure:"limited_bounds"`
	Width         float64 `mapstructure:"width"`  // Half extent, 0 uses the display
	Height        float64 `mapstructure:"height"` // Half extent, 0 uses the display
	XLeftClick    float64 `mapstructure:"x_left_click"`
	YLeftClick    float64 `mapstructure:"y_left_click"`

	Device string `mapstructure:"device"` // evdev node, empty picks the first pointer
	Grab   bool   `mapstructure:"grab"`

	// Touching this file or sending SIGUSR1 ends a grabbed session
	ReleaseFile string `mapstructure:"release_file"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
	File     string `mapstructure:"file"`      // Optional log file, empty disables it
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Broker: BrokerConfig{
			SocketPath:     "/run/touchbridge/helper.sock",
			UseAlternate:   false,
			ElevateCommand: "sudo -n",
			SpawnTimeoutMs: 5000,
			ProbeTimeoutMs: 200,
			SSHAddress:     "127.0.0.1:52626",
			SSHPrivateKey:  "",
			SSHUser:        "touchbridge",

			SSHHostFingerprint: "",
		},
		Helper: HelperConfig{
			SocketPath:     "/run/touchbridge/helper.sock",
			SocketMode:     0660,
			UinputPath:     "/dev/uinput",
			DeviceName:     "touchbridge",
			DisplayWidth:   1920,
			DisplayHeight:  1080,
			DetectDisplay:  false,
			PidFile:        "/run/touchbridge/helper.pid",
			SSHEnabled:     false,
			SSHAddress:     "127.0.0.1:52626",
			SSHHostKeyPath: "/etc/touchbridge/host_key",
			SSHGrantedKeys: []string{},
		},
		Shared: SharedConfig{
			SwipeDelayMs: 50,
		},
		Aim: AimConfig{
			XCenter:       960,
			YCenter:       540,
			XSensitivity:  1.0,
			YSensitivity:  1.0,
			NonLinear:     false,
			LimitedBounds: true,
			Width:         0,
			Height:        0,
			XLeftClick:    1700,
			YLeftClick:    900,
			Device:        "",
			Grab:          true,
			ReleaseFile:   "/tmp/touchbridge-release",
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
			File:     "",
		},
	}

	// Global config instance. mu also serializes viper, which the helper
	// reloads from connection goroutines.
	cfg *Config
	mu  sync.RWMutex

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	viper.SetConfigName("touchbridge")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		viper.AddConfigPath("/etc/touchbridge")

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			viper.AddConfigPath(fmt.Sprintf("/home/%s/.config/touchbridge", sudoUser))
		} else if home := os.Getenv("HOME"); home != "" && home != "/root" {
			viper.AddConfigPath(filepath.Join(home, ".config", "touchbridge"))
		}

		viper.AddConfigPath(".")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	cfg = loaded

	return nil
}

// Reload re-reads the config file that Init resolved
func Reload() error {
	mu.Lock()
	defer mu.Unlock()

	if err := viper.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	cfg = loaded
	return nil
}

// isNotFound covers both a failed search and a missing explicit --config file
func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Set defaults - need to set individual fields for proper merging
func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("broker.socket_path", d.Broker.SocketPath)
	viper.SetDefault("broker.use_alternate", d.Broker.UseAlternate)
	viper.SetDefault("broker.elevate_command", d.Broker.ElevateCommand)
	viper.SetDefault("broker.spawn_timeout_ms", d.Broker.SpawnTimeoutMs)
	viper.SetDefault("broker.probe_timeout_ms", d.Broker.ProbeTimeoutMs)
	viper.SetDefault("broker.ssh_address", d.Broker.SSHAddress)
	viper.SetDefault("broker.ssh_private_key", d.Broker.SSHPrivateKey)
	viper.SetDefault("broker.ssh_user", d.Broker.SSHUser)
	viper.SetDefault("broker.ssh_host_fingerprint", d.Broker.SSHHostFingerprint)

	viper.SetDefault("helper.socket_path", d.Helper.SocketPath)
	viper.SetDefault("helper.socket_mode", d.Helper.SocketMode)
	viper.SetDefault("helper.uinput_path", d.Helper.UinputPath)
	viper.SetDefault("helper.device_name", d.Helper.DeviceName)
	viper.SetDefault("helper.display_width", d.Helper.DisplayWidth)
	viper.SetDefault("helper.display_height", d.Helper.DisplayHeight)
	viper.SetDefault("helper.detect_display", d.Helper.DetectDisplay)
	viper.SetDefault("helper.pid_file", d.Helper.PidFile)
	viper.SetDefault("helper.ssh_enabled", d.Helper.SSHEnabled)
	viper.SetDefault("helper.ssh_address", d.Helper.SSHAddress)
	viper.SetDefault("helper.ssh_host_key_path", d.Helper.SSHHostKeyPath)
	viper.SetDefault("helper.ssh_granted_keys", d.Helper.SSHGrantedKeys)

	viper.SetDefault("shared.swipe_delay_ms", d.Shared.SwipeDelayMs)

	viper.SetDefault("aim.x_center", d.Aim.XCenter)
	viper.SetDefault("aim.y_center", d.Aim.YCenter)
	viper.SetDefault("aim.x_sensitivity", d.Aim.XSensitivity)
	viper.SetDefault("aim.y_sensitivity", d.Aim.YSensitivity)
	viper.SetDefault("aim.non_linear", d.Aim.NonLinear)
	viper.SetDefault("aim.limited_bounds", d.Aim.LimitedBounds)
	viper.SetDefault("aim.width", d.Aim.Width)
	viper.SetDefault("aim.height", d.Aim.Height)
	viper.SetDefault("aim.x_left_click", d.Aim.XLeftClick)
	viper.SetDefault("aim.y_left_click", d.Aim.YLeftClick)
	viper.SetDefault("aim.device", d.Aim.Device)
	viper.SetDefault("aim.grab", d.Aim.Grab)
	viper.SetDefault("aim.release_file", d.Aim.ReleaseFile)

	viper.SetDefault("logging.log_level", d.Logging.LogLevel)
	viper.SetDefault("logging.file", d.Logging.File)
}

// Get returns the current configuration
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current()
}

func current() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	path := configPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(path, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath()
}

func configPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	// The helper runs as root and reads the system config
	if os.Getuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return "/etc/touchbridge/touchbridge.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/touchbridge/touchbridge.toml"
	}

	return filepath.Join(home, ".config", "touchbridge", "touchbridge.toml")
}

// SetUseAlternate persists the escalation preference of the broker
func SetUseAlternate(useAlternate bool) error {
	mu.Lock()
	defer mu.Unlock()

	c := current()
	c.Broker.UseAlternate = useAlternate
	viper.Set("broker.use_alternate", useAlternate)
	return save()
}

// GrantSSHKey adds an SSH key fingerprint to the helper's grant list
func GrantSSHKey(fingerprint string) error {
	mu.Lock()
	defer mu.Unlock()

	c := current()

	for _, fp := range c.Helper.SSHGrantedKeys {
		if fp == fingerprint {
			return fmt.Errorf("key already granted")
		}
	}

	granted := append([]string(nil), c.Helper.SSHGrantedKeys...)
	c.Helper.SSHGrantedKeys = append(granted, fingerprint)
	viper.Set("helper.ssh_granted_keys", c.Helper.SSHGrantedKeys)
	return save()
}

// RevokeSSHKey removes an SSH key fingerprint from the grant list
func RevokeSSHKey(fingerprint string) error {
	mu.Lock()
	defer mu.Unlock()

	c := current()
	for i, fp := range c.Helper.SSHGrantedKeys {
		if fp == fingerprint {
			granted := append([]string(nil), c.Helper.SSHGrantedKeys[:i]...)
			c.Helper.SSHGrantedKeys = append(granted, c.Helper.SSHGrantedKeys[i+1:]...)
			viper.Set("helper.ssh_granted_keys", c.Helper.SSHGrantedKeys)
			return save()
		}
	}

	return fmt.Errorf("key not found in grant list")
}

// IsSSHKeyGranted checks if an SSH key fingerprint was granted
func IsSSHKeyGranted(fingerprint string) bool {
	mu.RLock()
	defer mu.RUnlock()

	for _, fp := range current().Helper.SSHGrantedKeys {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// SetAimDevice persists the input device of aim sessions
func SetAimDevice(path string) error {
	mu.Lock()
	defer mu.Unlock()

	c := current()
	c.Aim.Device = path
	viper.Set("aim.device", path)
	return save()
}
