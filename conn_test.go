package tftp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T, ctx context.Context) *Conn {
	t.Helper()
	conn, err := NewConn(ctx, net.ParseIP("127.0.0.1"))
	require.NoError(t, err)
	conn.SetMaxRetries(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSendAndAwaitAckSucceedsOnFirstTry(t *testing.T) {
	ctx := context.Background()
	a := newTestConn(t, ctx)
	b := newTestConn(t, ctx)
	a.LockPeer(b.LocalAddr())
	b.LockPeer(a.LocalAddr())

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		pkt, _, err := b.Recv(buf)
		if err != nil {
			done <- err
			return
		}
		dp, ok := pkt.(*DataPacket)
		if !ok {
			done <- ErrUnexpectedPacket
			return
		}
		done <- b.Send(&AckPacket{Block: dp.Block})
	}()

	err := a.SendAndAwaitAck(&DataPacket{Block: 1, Payload: []byte("hi")})
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestRecvReturnsUnknownTidForWrongSource(t *testing.T) {
	ctx := context.Background()
	a := newTestConn(t, ctx)
	b := newTestConn(t, ctx)
	stranger := newTestConn(t, ctx)
	a.LockPeer(b.LocalAddr())

	require.NoError(t, stranger.SendTo(&AckPacket{Block: 1}, a.LocalAddr()))

	buf := make([]byte, 16)
	a.opts.timeout = 200 * time.Millisecond
	_, _, err := a.Recv(buf)
	require.ErrorIs(t, err, ErrUnknownTid)
}

func TestSendAndAwaitAckTimesOutAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	a := newTestConn(t, ctx)
	b := newTestConn(t, ctx) // never replies
	a.LockPeer(b.LocalAddr())
	a.opts.timeout = 50 * time.Millisecond
	a.SetMaxRetries(2)

	err := a.SendAndAwaitAck(&DataPacket{Block: 1, Payload: []byte("x")})
	require.ErrorIs(t, err, ErrTimeout)
}

// TestSendInitialRequestDropsReplyFromWrongIP exercises the distilled spec
// §4.C TID-assignment guard: the client must accept whatever ephemeral port
// the first reply carries, but a reply from an IP other than the server it
// sent the request to must be dropped rather than adopted as the peer.
func TestSendInitialRequestDropsReplyFromWrongIP(t *testing.T) {
	ctx := context.Background()
	requester := newTestConn(t, ctx)
	requester.opts.timeout = 150 * time.Millisecond
	requester.SetMaxRetries(5)

	legit, err := NewConn(ctx, net.ParseIP("127.0.0.1"))
	require.NoError(t, err)
	t.Cleanup(func() { legit.Close() })

	stranger, err := NewConn(ctx, net.ParseIP("127.0.0.2"))
	require.NoError(t, err)
	t.Cleanup(func() { stranger.Close() })

	// An off-path attacker on a different IP forges a reply to the
	// requester's ephemeral port without ever seeing the request.
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = stranger.SendTo(&AckPacket{Block: 0}, requester.LocalAddr())
	}()

	// The legitimate server answers for real.
	go func() {
		buf := make([]byte, 16)
		pkt, from, err := legit.Recv(buf)
		if err != nil {
			return
		}
		if _, ok := pkt.(*RequestPacket); !ok {
			return
		}
		_ = legit.SendTo(&AckPacket{Block: 0}, from)
	}()

	req := &RequestPacket{Kind: RequestWrite, Filename: "f", Mode: ModeOctet}
	reply, from, err := requester.SendInitialRequest(req, legit.LocalAddr())
	require.NoError(t, err)
	_, ok := reply.(*AckPacket)
	require.True(t, ok)
	assert.True(t, sameIP(from, legit.LocalAddr()), "locked peer must share the server's IP")
}

func TestLockPeerPanicsOnRelock(t *testing.T) {
	ctx := context.Background()
	a := newTestConn(t, ctx)
	b := newTestConn(t, ctx)
	c := newTestConn(t, ctx)
	a.LockPeer(b.LocalAddr())

	expectPanic := func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic on re-lock to a different address")
			}
		}()
		a.LockPeer(c.LocalAddr())
	}
	expectPanic()
}
