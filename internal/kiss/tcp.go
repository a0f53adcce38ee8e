package kiss

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vk4msl/goax25kiss/internal/xsignal"
)

// DialTCP connects to a TNC offering KISS over a TCP socket (e.g. Direwolf
// or another software TNC listening on 8001) and returns it as a
// Transport.
func DialTCP(addr string) (Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kiss: dial %s: %w", addr, err)
	}

	return conn, nil
}

// TCPServer accepts client applications speaking KISS over TCP, the
// opposite role from DialTCP: one or more applications connect to this
// process to reach the radio channels it serves.
type TCPServer struct {
	ln  net.Listener
	log *log.Logger

	// ClientConnected fires once per accepted connection with the Port
	// wrapping it; the caller is responsible for calling Run on it (and
	// typically wiring Received to an interface scheduler).
	ClientConnected *xsignal.Signal[*Port]

	mu      sync.Mutex
	clients []*Port
}

// ListenTCP starts a KISS TCP server on addr (e.g. ":8001").
func ListenTCP(addr string, logger *log.Logger) (*TCPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kiss: listen %s: %w", addr, err)
	}

	return &TCPServer{
		ln:              ln,
		log:             logger,
		ClientConnected: xsignal.New[*Port](logger),
	}, nil
}

// Serve accepts connections until ctx is cancelled or the listener errors.
// Each accepted connection is wrapped in a Port, registered, and announced
// via ClientConnected; Serve itself does not run the Port's read loop.
func (s *TCPServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return fmt.Errorf("kiss: accept: %w", err)
			}
		}

		p := NewPort(conn, s.log)

		s.mu.Lock()
		s.clients = append(s.clients, p)
		s.mu.Unlock()

		s.ClientConnected.Emit(p)
	}
}

// Broadcast sends a data frame on channel to every currently connected
// client, used when a received radio frame must fan out to all of them.
func (s *TCPServer) Broadcast(channel byte, payload []byte) {
	s.mu.Lock()
	clients := make([]*Port, len(s.clients))
	copy(clients, s.clients)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.Send(channel, payload)
	}
}

// Close stops accepting new connections and closes every client Port.
func (s *TCPServer) Close() error {
	err := s.ln.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		_ = c.Close()
	}

	return err
}
