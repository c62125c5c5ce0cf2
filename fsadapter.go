package tftp

import (
	"github.com/jonasjelonek/tftp/internal/rootfs"
)

// FileHandler resolves a request's filename to a file stream. It is the
// contract between a role driver and whatever storage backs it; RootHandler
// is the only implementation this module ships, but any type satisfying
// this interface can stand in for it.
type FileHandler interface {
	Open(filename string) (ReadCloser, error)
	Create(filename string) (WriteCloser, error)
}

// FileError is returned by a FileHandler when a request's filename could
// not be resolved to a usable stream; TFTPCode says which ERROR a role
// driver should report back to the peer.
type FileError interface {
	error
	TFTPCode() ErrorCode
}

// RootHandler adapts a root-directory filesystem root to FileHandler,
// mapping OS-level open failures to the TFTP ERROR codes the original
// server's request handler distinguishes.
type RootHandler struct {
	root *rootfs.Root
}

// NewRootHandler resolves dir and returns a FileHandler serving files under
// it.
func NewRootHandler(dir string) (*RootHandler, error) {
	root, err := rootfs.Open(dir)
	if err != nil {
		return nil, err
	}
	return &RootHandler{root: root}, nil
}

// Dir returns the resolved root directory.
func (h *RootHandler) Dir() string { return h.root.Dir() }

func (h *RootHandler) Open(filename string) (ReadCloser, error) {
	f, err := h.root.OpenFile(filename)
	if err != nil {
		return nil, wrapFileError(err)
	}
	return f, nil
}

func (h *RootHandler) Create(filename string) (WriteCloser, error) {
	f, err := h.root.Create(filename)
	if err != nil {
		return nil, wrapFileError(err)
	}
	return f, nil
}

func wrapFileError(err error) error {
	code := ErrCodeStorageError
	switch rootfs.Classify(err) {
	case rootfs.KindNotFound:
		code = ErrCodeFileNotFound
	case rootfs.KindPermission:
		code = ErrCodeAccessViolation
	}
	return &fileError{code: code, err: err}
}

type fileError struct {
	code ErrorCode
	err  error
}

func (e *fileError) Error() string      { return e.err.Error() }
func (e *fileError) Unwrap() error      { return e.err }
func (e *fileError) TFTPCode() ErrorCode { return e.code }
