package tftp

import (
	"io"

	"github.com/pkg/errors"
)

// sendData is the send-data loop shared by the RRQ server and the WRQ
// client: read up to the negotiated blocksize from stream, send it as a
// numbered DATA block, and wait for its ACK before advancing. A block
// shorter than the negotiated blocksize ends the transfer; if the stream's
// length is an exact multiple of the blocksize, a final empty DATA block is
// still sent, because the short-read-from-EOF check below naturally
// produces one.
func sendData(conn *Conn, stream io.Reader) error {
	if conn.Mode() == ModeNetASCII {
		conn.SendError(ErrCodeIllegalOperation, "NetAscii mode not supported")
		return ErrUnsupportedTxMode
	}

	blocksize := int(conn.Blocksize())
	buf := make([]byte, 4+blocksize)
	var block uint16 = 1

	for {
		if conn.Cancelled() {
			return ErrCancelled
		}

		n, err := io.ReadFull(stream, buf[4:4+blocksize])
		switch err {
		case nil, io.ErrUnexpectedEOF:
			// full or final short block
		case io.EOF:
			n = 0
		default:
			conn.SendError(ErrCodeStorageError, err.Error())
			return errors.Wrap(err, "tftp: read file stream")
		}

		EncodeDataHeader(buf, block)
		dataPkt := &DataPacket{Block: block, Payload: buf[4 : 4+n]}
		if err := conn.SendAndAwaitAck(dataPkt); err != nil {
			return err
		}

		if n < blocksize {
			return nil
		}
		block++
	}
}

// receiveData is the receive-data loop shared by the RRQ client and the WRQ
// server. expected starts at 1 unless firstBlock carries the block already
// consumed by the driver while determining whether the peer sent an OACK or
// fell back to replying with DATA#1 directly (distilled spec §4.D).
func receiveData(conn *Conn, stream io.Writer, firstBlock *DataPacket) error {
	blocksize := int(conn.Blocksize())
	var expected uint16 = 1
	var lastAcked uint16
	var haveAcked bool

	if firstBlock != nil {
		if _, err := stream.Write(firstBlock.Payload); err != nil {
			conn.SendError(ErrCodeStorageError, err.Error())
			return errors.Wrap(err, "tftp: write file stream")
		}
		if err := conn.Send(&AckPacket{Block: expected}); err != nil {
			return err
		}
		lastAcked = expected
		haveAcked = true
		if len(firstBlock.Payload) < blocksize {
			return flush(stream)
		}
		expected++
	}

	buf := make([]byte, 4+blocksize)
	for {
		if conn.Cancelled() {
			return ErrCancelled
		}

		pkt, _, err := conn.Recv(buf)
		if err != nil {
			if errors.Is(err, ErrUnknownTid) {
				continue
			}
			return err
		}

		switch p := pkt.(type) {
		case *DataPacket:
			switch {
			case p.Block == expected:
				if _, err := stream.Write(p.Payload); err != nil {
					conn.SendError(ErrCodeStorageError, err.Error())
					return errors.Wrap(err, "tftp: write file stream")
				}
				if err := conn.Send(&AckPacket{Block: expected}); err != nil {
					return err
				}
				lastAcked = expected
				haveAcked = true
				if len(p.Payload) < blocksize {
					return flush(stream)
				}
				expected++
			case haveAcked && p.Block == lastAcked:
				// duplicate retransmission: re-ack, never rewrite.
				_ = conn.Send(&AckPacket{Block: lastAcked})
			default:
				// out-of-sequence block: silently drop.
			}
		case *ErrorPacket:
			return &PeerError{Code: p.Code, Msg: p.Message}
		default:
			// any other packet kind is noise during a receive loop: drop.
		}
	}
}

type flusher interface {
	Flush() error
}

func flush(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
