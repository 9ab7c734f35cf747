package keys

import (
	"strconv"

	digest "github.com/opencontainers/go-digest"
)

// Memory returns the memory-cache key for uri decoded to a w x h target.
func Memory(uri string, w, h int) string {
	return uri + "_" + strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

// Disk returns the file name used for uri in the disk cache: the hex sha256 of the URI.
func Disk(uri string) string {
	return digest.FromString(uri).Encoded()
}
