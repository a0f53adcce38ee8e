//go:build linux

package kiss

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// SerialCandidate is a tty device udev reports as a plausible KISS TNC:
// its device node, plus the USB vendor/product IDs when available.
type SerialCandidate struct {
	Devnode string
	Vendor  string
	Product string
}

// DiscoverSerialPorts enumerates /dev/tty* devices backed by a USB serial
// adapter, the common case for a packet TNC plugged in over USB.
func DiscoverSerialPorts() ([]SerialCandidate, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()

	if err := e.AddMatchSubsystem("tty"); err != nil {
		return nil, fmt.Errorf("kiss: udev match subsystem: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("kiss: udev enumerate: %w", err)
	}

	var out []SerialCandidate

	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}

		parent := d.ParentWithSubsystemDevtype("usb", "usb_device")
		if parent == nil {
			continue
		}

		out = append(out, SerialCandidate{
			Devnode: node,
			Vendor:  parent.PropertyValue("ID_VENDOR_ID"),
			Product: parent.PropertyValue("ID_MODEL_ID"),
		})
	}

	return out, nil
}
