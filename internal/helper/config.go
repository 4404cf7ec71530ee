package helper

import (
	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/protocol"
)

// SharedFromConfig extracts the values the helper hands out to clients
func SharedFromConfig(c *config.Config) protocol.SharedConfig {
	return protocol.SharedConfig{SwipeDelayMs: c.Shared.SwipeDelayMs}
}

// ConfigLoader re-reads the configuration file for Reload
func ConfigLoader() (protocol.SharedConfig, error) {
	if err := config.Reload(); err != nil {
		return protocol.SharedConfig{}, err
	}
	return SharedFromConfig(config.Get()), nil
}

// NewFromConfig builds the uinput service described by the helper section
func NewFromConfig(c *config.Config) (*Service, error) {
	return NewUinputService(UinputOptions{
		Path:   c.Helper.UinputPath,
		Name:   c.Helper.DeviceName,
		Width:  int32(c.Helper.DisplayWidth),
		Height: int32(c.Helper.DisplayHeight),
		Shared: SharedFromConfig(c),
		Loader: ConfigLoader,
	})
}
