package fetcher

import "strings"

// Scheme is the prefix of an image URI that selects how its bytes are opened.
type Scheme string

const (
	HTTP     Scheme = "http"
	HTTPS    Scheme = "https"
	File     Scheme = "file"
	Content  Scheme = "content"
	Asset    Scheme = "asset"
	Drawable Scheme = "drawable"
	Unknown  Scheme = ""
)

var schemes = [...]Scheme{HTTP, HTTPS, File, Content, Asset, Drawable}

// SchemeOf returns the scheme uri starts with, or Unknown.
// Matching is a case-insensitive prefix match on "scheme://".
func SchemeOf(uri string) Scheme {
	for _, s := range schemes {
		if s.belongsTo(uri) {
			return s
		}
	}
	return Unknown
}

func (s Scheme) prefix() string { return string(s) + "://" }

func (s Scheme) belongsTo(uri string) bool {
	p := s.prefix()
	return len(uri) >= len(p) && strings.EqualFold(uri[:len(p)], p)
}

// Wrap prepends the scheme to path, e.g. File.Wrap("/tmp/a") == "file:///tmp/a".
func (s Scheme) Wrap(path string) string {
	return s.prefix() + path
}

// Crop strips the scheme from uri. It panics if uri does not carry s; callers
// dispatch on SchemeOf first.
func (s Scheme) Crop(uri string) string {
	if !s.belongsTo(uri) {
		panic("fetcher: uri " + uri + " does not have scheme " + string(s))
	}
	return uri[len(s.prefix()):]
}

// Network reports whether the scheme reaches the network.
func (s Scheme) Network() bool { return s == HTTP || s == HTTPS }
