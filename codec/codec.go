// Package codec converts values to and from bytes for caches that keep
// rasters outside the Go heap. The default for raster frames is Wire; Msgpack
// and CBOR are available for any value type.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
