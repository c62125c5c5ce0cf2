package tftp

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Conn owns one transfer's UDP endpoint: a socket bound to an ephemeral
// port, the locked remote TID, the effective (possibly negotiated) options,
// and the cancellation signal for the process lifecycle. A Conn is created
// at the start of a request and discarded at its end; its socket closes
// when Close is called.
type Conn struct {
	ctx context.Context

	pc         net.PacketConn
	peer       net.Addr
	peerLocked bool

	opts       effectiveOptions
	mode       Mode
	maxRetries uint8

	log Logger
}

// NewConn binds a UDP socket at (localIP, 0) and returns a Conn with the
// peer unset and the protocol defaults in effect. ctx is the cancellation
// signal threaded through every blocking call this Conn makes; the Conn
// never cancels it, only observes it.
func NewConn(ctx context.Context, localIP net.IP) (*Conn, error) {
	pc, err := net.ListenPacket("udp", (&net.UDPAddr{IP: localIP, Port: 0}).String())
	if err != nil {
		return nil, errors.Wrap(err, "tftp: bind local endpoint")
	}
	return &Conn{
		ctx:        ctx,
		pc:         pc,
		opts:       defaultEffectiveOptions(),
		mode:       ModeOctet,
		maxRetries: DefaultMaxRetries,
		log:        nopLogger{},
	}, nil
}

// Close releases the bound UDP socket. A Conn is not usable after Close.
func (c *Conn) Close() error {
	return c.pc.Close()
}

// SetLogger installs the logging collaborator; nil restores the no-op
// logger.
func (c *Conn) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	c.log = l
}

// SetMaxRetries overrides DefaultMaxRetries for SendAndAwaitAck.
func (c *Conn) SetMaxRetries(n uint8) { c.maxRetries = n }

// Context returns the cancellation signal this Conn was created with.
func (c *Conn) Context() context.Context { return c.ctx }

// Cancelled reports whether the process-wide cancellation signal has fired.
func (c *Conn) Cancelled() bool { return c.ctx.Err() != nil }

// LocalAddr is the bound ephemeral endpoint.
func (c *Conn) LocalAddr() net.Addr { return c.pc.LocalAddr() }

// Peer is the locked remote TID, or nil before LockPeer is called.
func (c *Conn) Peer() net.Addr { return c.peer }

// LockPeer sets the remote TID that every subsequent send targets and every
// subsequent receive is validated against. It is idempotent for the address
// it is already locked to. Locking to a second, different address is a
// programming error: every role driver locks the peer exactly once, from
// the source address of the first legitimate reply.
func (c *Conn) LockPeer(addr net.Addr) {
	if c.peerLocked {
		if sameAddr(c.peer, addr) {
			return
		}
		panic("tftp: peer TID already locked to a different address")
	}
	c.peer = addr
	c.peerLocked = true
}

// Mode returns the transfer mode currently in effect (always ModeOctet;
// ModeNetASCII is rejected before a Conn reaches TRANSFERRING).
func (c *Conn) Mode() Mode { return c.mode }

// SetMode records the mode carried by the request that opened this
// transfer.
func (c *Conn) SetMode(m Mode) { c.mode = m }

// Blocksize is the effective blksize: the negotiated value once an OACK
// exchange (or its fallback) has completed, DefaultBlocksize before.
func (c *Conn) Blocksize() uint16 { return c.opts.blocksize }

// TransferSize is the effective tsize, 0 if never set or negotiated.
func (c *Conn) TransferSize() uint32 { return c.opts.transferSize }

// SetTransferSize records a file size discovered outside of negotiation
// (e.g. the server filling in tsize=0 on an RRQ from the opened file's
// actual size).
func (c *Conn) SetTransferSize(v uint32) { c.opts.transferSize = v }

// ApplyOptions merges every option in set into the effective set atomically
// from the caller's point of view: Blocksize/Timeout/TransferSize either all
// reflect the update after this call returns, or the call hasn't happened
// yet. There is no partial-apply state observable by other goroutines
// because a Conn is never shared across goroutines.
func (c *Conn) ApplyOptions(set OptionSet) {
	c.opts.mergeFrom(set)
}

// ResetToDefaults discards any applied options, used on the client's OACK
// fallback path (distilled spec §4.B: a bare DATA#1/ACK#0 reply means the
// server never negotiated, so the client must revert).
func (c *Conn) ResetToDefaults() {
	c.opts = defaultEffectiveOptions()
}

// Send transmits a fully-serialized packet to the locked peer.
func (c *Conn) Send(p Packet) error {
	return c.sendTo(p, c.peer)
}

// SendTo transmits to an explicit address, used only for the initial
// request before the peer is locked.
func (c *Conn) SendTo(p Packet, addr net.Addr) error {
	return c.sendTo(p, addr)
}

func (c *Conn) sendTo(p Packet, addr net.Addr) error {
	var buf bytes.Buffer
	if err := p.WriteTo(&buf); err != nil {
		return errors.Wrap(err, "tftp: serialize packet")
	}
	if _, err := c.pc.WriteTo(buf.Bytes(), addr); err != nil {
		return errors.Wrap(err, "tftp: write datagram")
	}
	return nil
}

// SendError is a best-effort ERROR send to the locked peer; failures are
// logged, never returned, as the caller is already terminating the
// transfer.
func (c *Conn) SendError(code ErrorCode, message string) {
	if c.peer == nil {
		return
	}
	if err := c.sendTo(&ErrorPacket{Code: code, Message: message}, c.peer); err != nil {
		c.log.Warnf("tftp: failed to send ERROR %s: %v", code, err)
	}
}

func (c *Conn) sendErrorTo(code ErrorCode, message string, addr net.Addr) {
	if err := c.sendTo(&ErrorPacket{Code: code, Message: message}, addr); err != nil {
		c.log.Warnf("tftp: failed to send ERROR %s to %s: %v", code, addr, err)
	}
}

// Recv blocks up to the current effective timeout for one datagram. If the
// peer is locked and the datagram's source does not match it, an
// UnknownTid ERROR is sent to the offending source and ErrUnknownTid is
// returned without affecting anything else about the transfer.
func (c *Conn) Recv(buf []byte) (Packet, net.Addr, error) {
	if err := c.pc.SetReadDeadline(time.Now().Add(c.opts.timeout)); err != nil {
		return nil, nil, errors.Wrap(err, "tftp: set read deadline")
	}
	n, addr, err := c.pc.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		return nil, nil, errors.Wrap(err, "tftp: read datagram")
	}

	if c.peerLocked && !sameAddr(addr, c.peer) {
		c.log.Tracef("tftp: dropping datagram from unexpected source %s (peer is %s)", addr, c.peer)
		c.sendErrorTo(ErrCodeUnknownTid, "Unknown TID", addr)
		return nil, addr, ErrUnknownTid
	}

	pkt, err := ParsePacket(buf[:n])
	if err != nil {
		return nil, addr, &InvalidResponseError{Cause: err}
	}
	return pkt, addr, nil
}

// SendAndAwaitAck is the retransmission primitive: send dataPkt, wait up to
// the effective timeout for its ACK, and resend on timeout. A duplicate ACK
// for an earlier block is dropped without resetting or advancing the retry
// counter; an ACK for dataPkt.Block succeeds. After maxRetries consecutive
// timeouts the transfer fails with ErrTimeout.
func (c *Conn) SendAndAwaitAck(dataPkt *DataPacket) error {
	buf := make([]byte, 4+int(c.opts.blocksize))
	var attempts uint8

sendAttempt:
	for {
		if c.Cancelled() {
			return ErrCancelled
		}
		if err := c.Send(dataPkt); err != nil {
			return err
		}

		for {
			pkt, _, err := c.Recv(buf)
			if err != nil {
				switch {
				case errors.Is(err, ErrUnknownTid):
					continue
				case errors.Is(err, ErrTimeout):
					attempts++
					if attempts >= c.maxRetries {
						return ErrTimeout
					}
					continue sendAttempt
				default:
					return err
				}
			}

			switch p := pkt.(type) {
			case *AckPacket:
				if p.Block == dataPkt.Block {
					return nil
				}
				// duplicate/early ack for a different block: drop and keep
				// waiting on the same attempt.
				continue
			case *ErrorPacket:
				return &PeerError{Code: p.Code, Msg: p.Message}
			default:
				continue
			}
		}
	}
}

// SendAndAwait sends pkt and retries on timeout, the same way
// SendAndAwaitAck does, until accept reports the received packet satisfies
// the caller's expectation. It is the OACK-handshake counterpart of
// SendAndAwaitAck: a server resending an OACK until it sees ACK#0 (RRQ) or
// DATA#1 (WRQ). It sends to the locked peer, so the client's initial
// request goes through SendInitialRequest instead.
func (c *Conn) SendAndAwait(pkt Packet, accept func(Packet) bool) (Packet, error) {
	buf := make([]byte, 4+int(c.opts.blocksize))
	var attempts uint8

sendAttempt:
	for {
		if c.Cancelled() {
			return nil, ErrCancelled
		}
		if err := c.Send(pkt); err != nil {
			return nil, err
		}

		for {
			got, _, err := c.Recv(buf)
			if err != nil {
				switch {
				case errors.Is(err, ErrUnknownTid):
					continue
				case errors.Is(err, ErrTimeout):
					attempts++
					if attempts >= c.maxRetries {
						return nil, ErrTimeout
					}
					continue sendAttempt
				default:
					return nil, err
				}
			}

			if errp, ok := got.(*ErrorPacket); ok {
				return nil, &PeerError{Code: errp.Code, Msg: errp.Message}
			}
			if accept(got) {
				return got, nil
			}
			// anything else (duplicate reply, unrelated packet): keep
			// waiting on the same attempt.
		}
	}
}

// SendInitialRequest sends pkt to addr before the peer TID is known, and
// waits for any reply, resending pkt on timeout up to maxRetries times. It
// exists separately from SendAndAwait because the peer isn't locked yet: any
// source port is accepted (that's the TID-assignment trick), but the source
// IP must match addr's — a reply from a different IP is dropped and sent an
// UnknownTid ERROR, the same off-path-spoofing guard the reference client
// applies before connecting. The caller is expected to call LockPeer with
// the returned address once it has decided the reply is legitimate.
func (c *Conn) SendInitialRequest(pkt Packet, addr net.Addr) (Packet, net.Addr, error) {
	buf := make([]byte, 4+int(c.opts.blocksize))
	var attempts uint8

sendAttempt:
	for {
		if c.Cancelled() {
			return nil, nil, ErrCancelled
		}
		if err := c.SendTo(pkt, addr); err != nil {
			return nil, nil, err
		}

		for {
			if err := c.pc.SetReadDeadline(time.Now().Add(c.opts.timeout)); err != nil {
				return nil, nil, errors.Wrap(err, "tftp: set read deadline")
			}
			n, from, err := c.pc.ReadFrom(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					attempts++
					if attempts > c.maxRetries {
						return nil, nil, ErrTimeout
					}
					continue sendAttempt
				}
				return nil, nil, errors.Wrap(err, "tftp: read datagram")
			}

			if !sameIP(from, addr) {
				c.log.Tracef("tftp: dropping reply from unexpected IP %s (expected %s)", from, addr)
				c.sendErrorTo(ErrCodeUnknownTid, "Unknown TID", from)
				continue
			}

			got, err := ParsePacket(buf[:n])
			if err != nil {
				c.log.Tracef("tftp: dropping unparseable reply from %s: %v", from, err)
				continue
			}
			if errp, ok := got.(*ErrorPacket); ok {
				return nil, from, &PeerError{Code: errp.Code, Msg: errp.Message}
			}
			return got, from, nil
		}
	}
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Network() == b.Network() && a.String() == b.String()
}

// addrIP extracts the IP component of a net.Addr, working for both the
// *net.UDPAddr this package deals in directly and any other net.Addr whose
// String() renders as host:port.
func addrIP(a net.Addr) net.IP {
	if ua, ok := a.(*net.UDPAddr); ok {
		return ua.IP
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// sameIP reports whether a and b name the same host, ignoring port. This is
// the TID-assignment guard from distilled spec §4.C: the client must accept
// whatever ephemeral port the server's first reply carries, but the IP must
// still match the server it sent the request to.
func sameIP(a, b net.Addr) bool {
	ia, ib := addrIP(a), addrIP(b)
	if ia == nil || ib == nil {
		return false
	}
	return ia.Equal(ib)
}
