package tftp

import "io"

// ReadCloser is the file-stream collaborator for RRQ-server and WRQ-client:
// a readable byte stream plus a size query used to answer tsize requests.
type ReadCloser interface {
	io.ReadCloser
	Size() (int64, error)
}

// WriteCloser is the file-stream collaborator for RRQ-client and WRQ-server:
// a writable byte stream.
type WriteCloser interface {
	io.WriteCloser
}
