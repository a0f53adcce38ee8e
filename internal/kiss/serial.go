package kiss

import (
	"fmt"

	"github.com/pkg/term"
)

// SupportedBauds lists the speeds a serial TNC connection accepts; an
// unrecognised rate is rejected rather than silently clamped.
var SupportedBauds = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// OpenSerial opens devicename (e.g. "/dev/ttyUSB0") in raw mode at baud and
// returns it as a Transport. baud == 0 leaves the port's current speed
// alone.
func OpenSerial(devicename string, baud int) (Transport, error) {
	t, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("kiss: open serial port %s: %w", devicename, err)
	}

	if baud != 0 {
		if !supportedBaud(baud) {
			t.Close()
			return nil, fmt.Errorf("kiss: unsupported baud rate %d", baud)
		}

		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, fmt.Errorf("kiss: set speed %d on %s: %w", baud, devicename, err)
		}
	}

	return t, nil
}

func supportedBaud(baud int) bool {
	for _, b := range SupportedBauds {
		if b == baud {
			return true
		}
	}

	return false
}
