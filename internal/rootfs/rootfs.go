// Package rootfs is the filesystem collaborator the role drivers use to
// resolve a request's filename against a server's or client's working
// directory. It exists purely as ambient plumbing: it returns plain
// io.ReadCloser/io.WriteCloser values (with an extra Size method on the read
// side) so the engine package can treat them as its own ReadCloser/
// WriteCloser collaborators without this package importing the engine.
package rootfs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Root wraps an absolute directory and resolves every requested filename
// against it, refusing to let a ".." or an absolute path escape it. The
// original implementation this engine is ported from joins the requested
// filename onto its working directory without any such check; this is a
// deliberate hardening, not a behavior carried over from it.
type Root struct {
	dir string
}

// Open resolves dir to an absolute path. dir need not exist yet: Open does
// not check it, so a missing or unreadable root surfaces as a per-request
// failure on OpenFile/Create rather than as a startup failure.
func Open(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "rootfs: resolve root %q", dir)
	}
	return &Root{dir: abs}, nil
}

// Dir returns the resolved absolute root directory.
func (r *Root) Dir() string { return r.dir }

// resolve joins name onto the root and rejects any result that would fall
// outside it.
func (r *Root) resolve(name string) (string, error) {
	clean := filepath.Clean(string(filepath.Separator) + name)
	full := filepath.Join(r.dir, clean)
	if full != r.dir && !hasPathPrefix(full, r.dir) {
		return "", os.ErrPermission
	}
	return full, nil
}

func hasPathPrefix(full, dir string) bool {
	rel, err := filepath.Rel(dir, full)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// File is the read-side handle OpenFile returns: a regular file plus a Size
// query for answering tsize requests.
type File struct {
	*os.File
}

// Size reports the file's current length.
func (f *File) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// OpenFile resolves name under the root and opens it read-only.
func (r *Root) OpenFile(name string) (*File, error) {
	full, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	return &File{f}, nil
}

// Create resolves name under the root and opens it for writing, creating it
// if absent and truncating it if present.
func (r *Root) Create(name string) (*os.File, error) {
	full, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// Kind classifies a failure returned by OpenFile/Create into the three
// buckets a TFTP role driver reports differently, mirroring the
// NotFound/PermissionDenied/other match the original server's request
// handler performs on open(2)'s result.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindPermission
)

// Classify maps an error from OpenFile/Create to its Kind.
func Classify(err error) Kind {
	switch {
	case os.IsNotExist(err):
		return KindNotFound
	case os.IsPermission(err):
		return KindPermission
	default:
		return KindOther
	}
}
