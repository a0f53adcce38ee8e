// Command ax25digipeat runs a standalone WIDEn-N APRS digipeater on a
// single KISS channel: receive, decide, retransmit.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/vk4msl/goax25kiss/internal/aprs"
	"github.com/vk4msl/goax25kiss/internal/aprsiface"
	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/digipeater"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/kiss"
)

func main() {
	device := pflag.StringP("device", "d", "/dev/ttyUSB0", "serial device the TNC is attached to")
	tcp := pflag.String("tcp", "", "connect to a KISS TNC over TCP instead of a serial device (host:port)")
	baud := pflag.IntP("baud", "b", 9600, "serial baud rate")
	channel := pflag.Uint8P("channel", "c", 0, "KISS channel to digipeat on")
	mycall := pflag.StringP("call", "m", "", "this digipeater's callsign[-SSID] (required)")
	aliases := pflag.StringSlice("alias", nil, "mydigi alias callsigns to digipeat unconditionally (e.g. RELAY,TRACE)")
	pflag.Parse()

	logger := log.New(os.Stderr)

	if *mycall == "" {
		logger.Fatal("-call is required")
	}

	addr, err := ax25.DecodeAddressString(*mycall)
	if err != nil {
		logger.Fatal("invalid -call", "err", err)
	}

	transport, err := openTransport(*device, *tcp, *baud)
	if err != nil {
		logger.Fatal("open transport", "err", err)
	}

	port := kiss.NewPort(transport, logger)
	ifc := iface.New(port, *channel, iface.Config{}, nil, logger)

	digi := digipeater.New(digipeater.Config{
		MyCall:  addr,
		Aliases: parseAliases(logger, *aliases),
	})

	// The APRS interface supplies deduplication; the catch-all listen
	// pattern means the digipeater hears every non-duplicate frame on the
	// channel, whoever it is addressed to.
	ai := aprsiface.New(addr, ifc, aprsiface.Config{ListenDestinations: []string{"^"}}, logger)
	defer ai.Close()

	ai.ReceivedFrame.Connect(func(f aprs.Frame) {
		ui := f.UI()

		out, ok := digi.Process(ui)
		if !ok {
			return
		}

		logger.Info("digipeating", "source", ui.Header.Source, "repeaters", out.Header.Repeaters)
		ifc.Transmit(out, nil, nil)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := ifc.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("port run", "err", err)
	}
}

// parseAliases decodes each mydigi entry as a callsign[-SSID], so an
// SSID-qualified alias like WIDE1-1 matches only that SSID.
func parseAliases(logger *log.Logger, in []string) []ax25.Address {
	out := make([]ax25.Address, 0, len(in))

	for _, s := range in {
		addr, err := ax25.DecodeAddressString(strings.TrimSpace(s))
		if err != nil {
			logger.Fatal("invalid -alias", "alias", s, "err", err)
		}

		out = append(out, addr)
	}

	return out
}

func openTransport(device, tcpAddr string, baud int) (kiss.Transport, error) {
	if tcpAddr != "" {
		return kiss.DialTCP(tcpAddr)
	}

	return kiss.OpenSerial(device, baud)
}
