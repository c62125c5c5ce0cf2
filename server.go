package tftp

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// acceptPollInterval bounds how long the accept loop can block before it
// notices ctx has been cancelled.
const acceptPollInterval = 500 * time.Millisecond

// Server is the RRQ/WRQ acceptor: it binds the well-known port, reads one
// request datagram at a time, and hands each well-formed request to an
// independent goroutine that opens its own ephemeral-port Conn and runs the
// transfer loop. Zero-value fields fall back to sensible defaults.
type Server struct {
	// Handler resolves request filenames to file streams. Required.
	Handler FileHandler
	// Logger receives the server's and every transfer's log output. Nil
	// means no logging.
	Logger Logger
	// MaxRetries bounds each transfer's retransmission attempts; 0 means
	// DefaultMaxRetries.
	MaxRetries uint8
	// BindIP is the local address to listen on; nil means any address.
	BindIP net.IP
	// Port is the well-known port to listen on; 0 means DefaultPort.
	Port uint16
}

// NewServer returns a Server with the protocol defaults in effect, serving
// files through handler.
func NewServer(handler FileHandler) *Server {
	return &Server{
		Handler:    handler,
		Logger:     nopLogger{},
		MaxRetries: DefaultMaxRetries,
		Port:       DefaultPort,
	}
}

func (s *Server) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

func (s *Server) maxRetries() uint8 {
	if s.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

func (s *Server) port() uint16 {
	if s.Port == 0 {
		return DefaultPort
	}
	return s.Port
}

// Run binds the acceptor socket and serves requests until ctx is cancelled,
// then waits for every in-flight transfer to finish before returning.
func (s *Server) Run(ctx context.Context) error {
	laddr := &net.UDPAddr{IP: s.BindIP, Port: int(s.port())}
	pc, err := net.ListenPacket("udp", laddr.String())
	if err != nil {
		return errors.Wrap(err, "tftp: bind server socket")
	}
	defer pc.Close()

	s.logger().Infof("tftp: server listening on %s", pc.LocalAddr())

	var group errgroup.Group
	buf := make([]byte, 4+int(MaxBlocksize))
	for ctx.Err() == nil {
		if err := pc.SetReadDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return errors.Wrap(err, "tftp: set accept deadline")
		}
		n, raddr, err := pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			s.logger().Warnf("tftp: accept read failed: %v", err)
			continue
		}

		reqBuf := make([]byte, n)
		copy(reqBuf, buf[:n])
		from := raddr
		group.Go(func() error {
			s.handleRequest(ctx, reqBuf, from)
			return nil
		})
	}

	return group.Wait()
}

func (s *Server) handleRequest(ctx context.Context, raw []byte, raddr net.Addr) {
	pkt, err := ParsePacket(raw)
	if err != nil {
		s.logger().Debugf("tftp: dropping malformed request from %s: %v", raddr, err)
		return
	}
	req, ok := pkt.(*RequestPacket)
	if !ok {
		s.logger().Debugf("tftp: dropping unexpected %T from %s", pkt, raddr)
		return
	}

	conn, err := NewConn(ctx, nil)
	if err != nil {
		s.logger().Errorf("tftp: failed to open transfer socket for %s: %v", raddr, err)
		return
	}
	defer conn.Close()
	conn.SetLogger(s.logger())
	conn.SetMaxRetries(s.maxRetries())
	conn.LockPeer(raddr)

	if req.Mode != ModeOctet {
		conn.SendError(ErrCodeIllegalOperation, "NetAscii mode not supported")
		return
	}
	conn.SetMode(req.Mode)

	requested, err := ParseOptions(req.Options)
	if err != nil {
		var negErr *OptionNegotiationError
		if errors.As(err, &negErr) {
			conn.SendError(ErrCodeInvalidOption, negErr.Reason)
		} else {
			conn.SendError(ErrCodeInvalidOption, err.Error())
		}
		return
	}

	s.logger().Infof("tftp: %s %q from %s", req.Kind, req.Filename, raddr)

	switch req.Kind {
	case RequestRead:
		s.serveRead(conn, req, requested)
	case RequestWrite:
		s.serveWrite(conn, req, requested)
	default:
		conn.SendError(ErrCodeIllegalOperation, "unknown request kind")
	}

	s.logger().Debugf("tftp: transfer with %s finished", raddr)
}

func (s *Server) serveRead(conn *Conn, req *RequestPacket, requested OptionSet) {
	f, err := s.Handler.Open(req.Filename)
	if err != nil {
		sendFileError(conn, err)
		return
	}
	defer f.Close()

	if requested.HasKind(OptKindTransferSize) {
		if size, err := f.Size(); err == nil {
			requested.Add(TransferSizeOption{Value: uint32(size)})
		}
	}

	if requested.Len() > 0 {
		conn.ApplyOptions(requested)
		oack := &OAckPacket{Options: requested.Pairs()}
		_, err := conn.SendAndAwait(oack, func(p Packet) bool {
			ap, ok := p.(*AckPacket)
			return ok && ap.Block == 0
		})
		if err != nil {
			s.logger().Debugf("tftp: option negotiation with %s failed: %v", conn.Peer(), err)
			return
		}
	}

	if err := sendData(conn, f); err != nil {
		s.logger().Debugf("tftp: RRQ to %s failed: %v", conn.Peer(), err)
	}
}

func (s *Server) serveWrite(conn *Conn, req *RequestPacket, requested OptionSet) {
	f, err := s.Handler.Create(req.Filename)
	if err != nil {
		sendFileError(conn, err)
		return
	}
	defer f.Close()

	var firstBlock *DataPacket
	if requested.Len() > 0 {
		conn.ApplyOptions(requested)
		oack := &OAckPacket{Options: requested.Pairs()}
		reply, err := conn.SendAndAwait(oack, func(p Packet) bool {
			_, ok := p.(*DataPacket)
			return ok
		})
		if err != nil {
			s.logger().Debugf("tftp: option negotiation with %s failed: %v", conn.Peer(), err)
			return
		}
		dp := reply.(*DataPacket)
		if dp.Block != 1 {
			conn.SendError(ErrCodeIllegalOperation, "expected block 1")
			return
		}
		firstBlock = dp
	} else if err := conn.Send(&AckPacket{Block: 0}); err != nil {
		return
	}

	if err := receiveData(conn, f, firstBlock); err != nil {
		s.logger().Debugf("tftp: WRQ from %s failed: %v", conn.Peer(), err)
	}
}

func sendFileError(conn *Conn, err error) {
	if ferr, ok := err.(FileError); ok {
		conn.SendError(ferr.TFTPCode(), ferr.Error())
		return
	}
	conn.SendError(ErrCodeStorageError, err.Error())
}
