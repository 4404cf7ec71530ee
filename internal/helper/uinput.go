package helper

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"golang.org/x/sys/unix"
)

// UinputOptions describes the virtual touch devices created for a service
type UinputOptions struct {
	Path   string // usually /dev/uinput
	Name   string // device name prefix
	Width  int32
	Height int32
	Shared protocol.SharedConfig
	Loader Loader
}

// NewUinputService creates one absolute touch device per pointer role
func NewUinputService(opts UinputOptions) (*Service, error) {
	if err := CheckUinputAccess(opts.Path); err != nil {
		return nil, err
	}

	devices := make(map[protocol.PointerID]Device, len(protocol.Pointers))
	for _, pointer := range protocol.Pointers {
		name := fmt.Sprintf("%s %s", opts.Name, pointer)
		pad, err := uinput.CreateTouchPad(opts.Path, []byte(name), 0, opts.Width, 0, opts.Height)
		if err != nil {
			for _, dev := range devices {
				_ = dev.Close()
			}
			return nil, fmt.Errorf("failed to create %s touch device: %w", pointer, err)
		}
		devices[pointer] = pad
		logger.Debugf("Created virtual touch device %q (%dx%d)", name, opts.Width, opts.Height)
	}

	return NewService(devices, opts.Width, opts.Height, opts.Shared, opts.Loader), nil
}

// CheckUinputAccess tests if the uinput node is writable by this process
func CheckUinputAccess(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist - is the uinput module loaded?", path)
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("no write access to %s: %w", path, err)
	}
	return nil
}

// EffectiveUID returns the uid of the user behind sudo, or the current uid
func EffectiveUID() int {
	if sudoUID := os.Getenv("SUDO_UID"); sudoUID != "" {
		if uid, err := strconv.Atoi(sudoUID); err == nil {
			return uid
		}
	}
	return os.Getuid()
}

// IsElevated reports whether this process runs as root
func IsElevated() bool {
	return os.Geteuid() == 0
}
