package tftp

import (
	"context"
	"fmt"
	"net"
)

// Client is the RRQ/WRQ initiator: it builds a request with the caller's
// requested options, sends it to the server's known address, and locks the
// peer TID to whichever source address the first legitimate reply comes
// from, the way the original implementation's client connect step does.
type Client struct {
	// Logger receives the client's log output. Nil means no logging.
	Logger Logger
	// MaxRetries bounds the initiation handshake's and the transfer's
	// retransmission attempts; 0 means DefaultMaxRetries.
	MaxRetries uint8
}

// NewClient returns a Client with the protocol defaults in effect.
func NewClient() *Client {
	return &Client{Logger: nopLogger{}, MaxRetries: DefaultMaxRetries}
}

func (c *Client) logger() Logger {
	if c.Logger == nil {
		return nopLogger{}
	}
	return c.Logger
}

func (c *Client) maxRetries() uint8 {
	if c.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

func resolveServer(host string, port uint16) (*net.UDPAddr, error) {
	if port == 0 {
		port = DefaultPort
	}
	return net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
}

func (c *Client) newConn(ctx context.Context) (*Conn, error) {
	conn, err := NewConn(ctx, nil)
	if err != nil {
		return nil, err
	}
	conn.SetLogger(c.logger())
	conn.SetMaxRetries(c.maxRetries())
	conn.SetMode(ModeOctet)
	return conn, nil
}

// Get retrieves filename from server (default port DefaultPort) and writes
// it to dst, applying opts as the requested options.
func (c *Client) Get(ctx context.Context, filename, server string, port uint16, opts Options, dst WriteCloser) error {
	raddr, err := resolveServer(server, port)
	if err != nil {
		return err
	}
	conn, err := c.newConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reqOpts := opts.toOptionSet()
	if opts.RequestTransferSize {
		reqOpts.Add(TransferSizeOption{Value: 0})
	}

	req := &RequestPacket{Kind: RequestRead, Filename: filename, Mode: ModeOctet, Options: reqOpts.ToRawMap()}
	reply, from, err := conn.SendInitialRequest(req, raddr)
	if err != nil {
		return err
	}
	conn.LockPeer(from)

	switch p := reply.(type) {
	case *OAckPacket:
		accepted, err := ParseOptions(rawFromPairs(p.Options))
		if err != nil {
			conn.SendError(ErrCodeInvalidOption, err.Error())
			return err
		}
		if err := ValidateAccepted(reqOpts, accepted); err != nil {
			conn.SendError(ErrCodeInvalidOption, err.Error())
			return err
		}
		conn.ApplyOptions(accepted)
		if err := conn.Send(&AckPacket{Block: 0}); err != nil {
			return err
		}
		return receiveData(conn, dst, nil)
	case *DataPacket:
		conn.ResetToDefaults()
		return receiveData(conn, dst, p)
	default:
		conn.SendError(ErrCodeIllegalOperation, "unexpected reply to RRQ")
		return ErrUnexpectedPacket
	}
}

// Put sends src to server (default port DefaultPort) as filename, applying
// opts as the requested options.
func (c *Client) Put(ctx context.Context, filename, server string, port uint16, opts Options, src ReadCloser) error {
	raddr, err := resolveServer(server, port)
	if err != nil {
		return err
	}
	conn, err := c.newConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reqOpts := opts.toOptionSet()
	if opts.RequestTransferSize {
		if size, err := src.Size(); err == nil {
			reqOpts.Add(TransferSizeOption{Value: uint32(size)})
		}
	}

	req := &RequestPacket{Kind: RequestWrite, Filename: filename, Mode: ModeOctet, Options: reqOpts.ToRawMap()}
	reply, from, err := conn.SendInitialRequest(req, raddr)
	if err != nil {
		return err
	}
	conn.LockPeer(from)

	switch p := reply.(type) {
	case *OAckPacket:
		accepted, err := ParseOptions(rawFromPairs(p.Options))
		if err != nil {
			conn.SendError(ErrCodeInvalidOption, err.Error())
			return err
		}
		if err := ValidateAccepted(reqOpts, accepted); err != nil {
			conn.SendError(ErrCodeInvalidOption, err.Error())
			return err
		}
		conn.ApplyOptions(accepted)
		return sendData(conn, src)
	case *AckPacket:
		if p.Block != 0 {
			conn.SendError(ErrCodeIllegalOperation, "unexpected ack block")
			return ErrUnexpectedBlockAck
		}
		conn.ResetToDefaults()
		return sendData(conn, src)
	default:
		conn.SendError(ErrCodeIllegalOperation, "unexpected reply to WRQ")
		return ErrUnexpectedPacket
	}
}
