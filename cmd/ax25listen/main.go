// Command ax25listen watches a KISS TNC channel and prints decoded AX.25
// frames, dissecting APRS traffic (position, message, ack/rej) where
// recognised. A UI frame whose APRS payload fails to decode is logged at
// debug level instead of printed.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/tzneal/coordconv"

	"github.com/vk4msl/goax25kiss/internal/aprs"
	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/kiss"
)

func r2d(r float64) float64 { return r * 180 / math.Pi }

func main() {
	device := pflag.StringP("device", "d", "/dev/ttyUSB0", "serial device the TNC is attached to")
	tcp := pflag.String("tcp", "", "connect to a KISS TNC over TCP instead of a serial device (host:port)")
	baud := pflag.IntP("baud", "b", 9600, "serial baud rate")
	channel := pflag.Uint8P("channel", "c", 0, "KISS channel to listen on")
	utm := pflag.Bool("utm", false, "print position reports as UTM coordinates instead of lat/lon")
	pflag.Parse()

	logger := log.New(os.Stderr)

	transport, err := openTransport(*device, *tcp, *baud)
	if err != nil {
		logger.Fatal("open transport", "err", err)
	}

	port := kiss.NewPort(transport, logger)
	ifc := iface.New(port, *channel, iface.Config{}, nil, logger)

	ifc.Subscribe(nil, func(f ax25.Frame) {
		printFrame(f, *utm, logger)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := ifc.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("port run", "err", err)
	}
}

func openTransport(device, tcpAddr string, baud int) (kiss.Transport, error) {
	if tcpAddr != "" {
		return kiss.DialTCP(tcpAddr)
	}

	return kiss.OpenSerial(device, baud)
}

func printFrame(f ax25.Frame, utm bool, logger *log.Logger) {
	hdr := f.GetHeader()

	ui, ok := f.(*ax25.UIFrame)
	if !ok {
		fmt.Printf("%s>%s: %T\n", hdr.Source, hdr.Destination, f)
		return
	}

	decoded, err := aprs.Decode(ui)
	if err != nil {
		logger.Debug("aprs decode error", "err", err)
		return
	}

	switch m := decoded.(type) {
	case *aprs.PositionFrame:
		printPosition(hdr, m, utm)
	case *aprs.MessageFrame:
		fmt.Printf("%s>%s: message to %s: %s (id=%s)\n", hdr.Source, hdr.Destination, m.Addressee, m.Text, m.MsgID)
	case *aprs.StatusFrame:
		fmt.Printf("%s>%s: status %s\n", hdr.Source, hdr.Destination, m.Text)
	case *aprs.ObjectFrame:
		fmt.Printf("%s>%s: object %q at %.5f,%.5f\n", hdr.Source, hdr.Destination, m.Name, m.Position.Lat, m.Position.Lon)
	default:
		fmt.Printf("%s>%s: UI %q\n", hdr.Source, hdr.Destination, ui.Payload)
	}
}

func printPosition(hdr *ax25.Header, p *aprs.PositionFrame, utm bool) {
	if !utm {
		fmt.Printf("%s>%s: position %.5f,%.5f %s\n", hdr.Source, hdr.Destination, p.Lat, p.Lon, p.Comment)
		return
	}

	latlng := p.LatLng()

	utmCoord, err := coordconv.DefaultUTMConverter.ConvertFromGeodetic(latlng, 0)
	if err != nil {
		fmt.Printf("%s>%s: position (UTM conversion failed: %s)\n", hdr.Source, hdr.Destination, err)
		return
	}

	fmt.Printf("%s>%s: position UTM zone %d easting %.0f northing %.0f %s\n",
		hdr.Source, hdr.Destination, utmCoord.Zone, utmCoord.Easting, utmCoord.Northing, p.Comment)
}
