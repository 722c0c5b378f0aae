package materialize

import (
	"bytes"
	"crypto/sha256"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cohortkit/cohortkit/pkg/errors"
)

// placeFile puts src at dst: hard link where the filesystem allows it,
// byte copy otherwise. A pre-existing destination with identical content
// is a no-op success; differing content is a typed conflict.
func placeFile(src, dst string) (linked, existed bool, err error) {
	srcInfo, statErr := os.Stat(src)
	if statErr != nil {
		return false, false, errors.Wrap(statErr, errors.CodeSourceMissing, "source missing").
			WithContext("source", src)
	}

	if dstInfo, statErr := os.Stat(dst); statErr == nil {
		same, cmpErr := sameContent(src, dst, srcInfo.Size(), dstInfo.Size())
		if cmpErr != nil {
			return false, false, wrapIOError(cmpErr, dst)
		}
		if same {
			return false, true, nil
		}
		return false, false, errors.DestinationConflict(dst)
	}

	if mkErr := os.MkdirAll(filepath.Dir(dst), 0o755); mkErr != nil {
		return false, false, wrapIOError(mkErr, dst)
	}

	if linkErr := os.Link(src, dst); linkErr == nil {
		return true, false, nil
	}
	// cross-device or unsupported: fall back to a byte copy
	if copyErr := copyFile(src, dst); copyErr != nil {
		return false, false, wrapIOError(copyErr, dst)
	}
	return false, false, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// sameContent compares two files, cheap size check first.
func sameContent(a, b string, sizeA, sizeB int64) (bool, error) {
	if sizeA != sizeB {
		return false, nil
	}
	hashA, err := hashFile(a)
	if err != nil {
		return false, err
	}
	hashB, err := hashFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(hashA, hashB), nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// wrapIOError classifies write failures: disk exhaustion is fatal for the
// whole run, anything else stays a per-item failure.
func wrapIOError(err error, dst string) error {
	code := errors.CodeCopyFailed
	var errno syscall.Errno
	if stderrors.As(err, &errno) && errno == syscall.ENOSPC {
		code = errors.CodeDiskFull
	}
	return errors.Wrap(err, code, "write failed").WithContext("destination", dst)
}
