// Command ax25station runs a connected-mode AX.25 station: it accepts
// inbound SABM(E) connections and, given a -connect target, relays stdin
// to/from a remote peer over a connected-mode link.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/vk4msl/goax25kiss/internal/ax25"
	"github.com/vk4msl/goax25kiss/internal/config"
	"github.com/vk4msl/goax25kiss/internal/iface"
	"github.com/vk4msl/goax25kiss/internal/kiss"
	"github.com/vk4msl/goax25kiss/internal/peer"
	"github.com/vk4msl/goax25kiss/internal/station"
)

func main() {
	configPath := pflag.StringP("config", "c", "ax25station.yaml", "station configuration file")
	connectTo := pflag.String("connect", "", "connect to this remote callsign[-SSID] on startup")
	pflag.Parse()

	logger := log.New(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	transport, err := cfg.OpenTransport()
	if err != nil {
		logger.Fatal("open transport", "err", err)
	}

	device := kiss.NewDevice(transport, cfg.DeviceConfig(), logger)
	if err := device.Open(ctx); err != nil {
		logger.Fatal("open KISS device", "err", err)
	}
	defer device.Close()

	port := kiss.NewPort(device, logger)
	ifc := iface.New(port, cfg.KISS.Channel, cfg.IfaceConfig(), nil, logger)

	protocol := peer.ProtocolAX25_20
	if cfg.Station.AX25_2_2 {
		protocol = peer.ProtocolAX25_22
	}

	st := station.New(cfg.Address(), protocol, cfg.PeerConfig(), ifc, logger)
	defer st.Close()

	st.ConnectionRequest.Connect(func(req station.ConnectionRequest) {
		logger.Info("inbound connection", "peer", req.Peer.Address)
		watchPeer(req.Peer, logger)
	})

	if *connectTo != "" {
		addr, err := ax25.DecodeAddressString(*connectTo)
		if err != nil {
			logger.Fatal("invalid -connect target", "err", err)
		}

		p := st.GetPeer(addr)
		watchPeer(p, logger)

		p.Connect(func(err error) {
			if err != nil {
				logger.Error("connect failed", "peer", addr, "err", err)
				return
			}

			logger.Info("connected", "peer", addr)
			go relayStdin(p)
		})
	}

	if err := ifc.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("port run", "err", err)
	}
}

func watchPeer(p *peer.Peer, logger *log.Logger) {
	p.ReceivedInformation.Connect(func(ev peer.InformationEvent) {
		fmt.Printf("%s: %s", ev.Peer.Address, ev.Payload)
	})

	p.ConnectStateChanged.Connect(func(ev peer.ConnectStateChange) {
		logger.Info("state change", "peer", ev.Peer.Address, "state", ev.State)
	})
}

func relayStdin(p *peer.Peer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		p.Send(0xf0, append(scanner.Bytes(), '\n'))
	}
}
