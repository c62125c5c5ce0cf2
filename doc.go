// Package tftp implements the server and client side of the Trivial File
// Transfer Protocol (RFC 1350) together with the option extensions from
// RFC 2347, RFC 2348 and RFC 2349 (blksize, timeout, tsize).
//
// The package is split leaves-first: packet.go and options.go decode and
// encode the wire format, conn.go owns the UDP endpoint and the
// retransmission/TID-validation state machine, transfer.go drives the
// block-numbered send/receive loops on top of a Conn, and server.go/client.go
// wire those pieces into the two role drivers. Only octet mode is supported;
// netascii requests are rejected with an IllegalOperation error.
package tftp
