package bids

import (
	"path/filepath"
	"strings"
)

// NoSession is the sentinel session identifier for sessionless datasets.
const NoSession = "n/a"

// Entity extracts the value of a key-value naming entity (sub, ses, space,
// task, ...) from a BIDS-style filename. Returns "" when absent.
func Entity(name, key string) string {
	base := filepath.Base(name)
	prefix := key + "-"
	for _, part := range strings.Split(base, "_") {
		if strings.HasPrefix(part, prefix) {
			value := strings.TrimPrefix(part, prefix)
			// last entity carries the suffix and extension
			if i := strings.IndexByte(value, '.'); i >= 0 {
				value = value[:i]
			}
			return value
		}
	}
	return ""
}

// Subject returns the sub- entity of a filename or folder name.
func Subject(name string) string { return Entity(name, "sub") }

// Session returns the ses- entity of a filename or folder name.
func Session(name string) string { return Entity(name, "ses") }

// Space returns the space- entity of a filename.
func Space(name string) string { return Entity(name, "space") }

// Stem strips the extension chain from a filename: compound imaging
// extensions like .nii.gz come off whole.
func Stem(name string) string {
	base := name
	for {
		ext := filepath.Ext(base)
		if ext == "" {
			return base
		}
		base = strings.TrimSuffix(base, ext)
	}
}

// SidecarName returns the metadata sidecar filename for a data file: same
// stem, .json extension. Returns "" when the file is itself a sidecar.
func SidecarName(name string) string {
	if strings.HasSuffix(name, ".json") {
		return ""
	}
	return Stem(name) + ".json"
}

// IsSubjectDir reports whether a folder name is a participant folder.
func IsSubjectDir(name string) bool { return strings.HasPrefix(name, "sub-") }

// IsSessionDir reports whether a folder name is a session folder.
func IsSessionDir(name string) bool { return strings.HasPrefix(name, "ses-") }
