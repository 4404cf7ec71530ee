package input

import (
	"fmt"

	"github.com/charmbracelet/huh"
	evdev "github.com/gvalkov/golang-evdev"
)

// DeviceInfo describes an input device that can drive an aim session
type DeviceInfo struct {
	Path string
	Name string
}

// Descriptive returns "name (path)"
func (d DeviceInfo) Descriptive() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Path)
}

// ListPointerDevices returns every device with relative X/Y axes and mouse buttons
func ListPointerDevices() ([]DeviceInfo, error) {
	evdevices, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	var devices []DeviceInfo
	for _, dev := range evdevices {
		if IsPointer(dev.CapabilitiesFlat) {
			devices = append(devices, DeviceInfo{Path: dev.Fn, Name: dev.Name})
		}
		_ = dev.File.Close()
	}
	return devices, nil
}

// FindPointerDevice returns the first pointer device
func FindPointerDevice() (DeviceInfo, error) {
	devices, err := ListPointerDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return DeviceInfo{}, fmt.Errorf("no suitable pointer device found")
	}
	return devices[0], nil
}

// SelectPointerDevice asks the user to pick a pointer device
func SelectPointerDevice() (string, error) {
	devices, err := ListPointerDevices()
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no suitable pointer device found")
	}

	options := make([]huh.Option[string], 0, len(devices))
	for _, dev := range devices {
		options = append(options, huh.NewOption(dev.Descriptive(), dev.Path))
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Aim Device").
				Description("Relative motion from this device moves the aim pointer").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("device selection cancelled: %w", err)
	}
	return selected, nil
}

// IsPointer reports whether a capability set has REL_X, REL_Y and a mouse button
func IsPointer(caps map[int][]int) bool {
	var hasX, hasY bool
	for _, axis := range caps[evdev.EV_REL] {
		switch axis {
		case evdev.REL_X:
			hasX = true
		case evdev.REL_Y:
			hasY = true
		}
	}
	if !hasX || !hasY {
		return false
	}

	for _, btn := range caps[evdev.EV_KEY] {
		if btn == evdev.BTN_LEFT || btn == evdev.BTN_RIGHT || btn == evdev.BTN_MIDDLE {
			return true
		}
	}
	return false
}
