// Package codec converts keys and values stored in kvlog.Store to bytes
// and back.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/kjk/drum/u"
)

// Codec converts values of type T to bytes and back.
//
// Decode(Encode(v)) must be equal to v. Encoding must not depend on
// anything but v.
// Decode must not keep a reference to d after it returns, d is re-used
// by the caller.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(d []byte) (T, error)
}

// ensure we implement desired interface
var (
	_ Codec[string]    = String{}
	_ Codec[[]byte]    = Bytes{}
	_ Codec[uint64]    = Uint64{}
	_ Codec[int64]     = Int64{}
	_ Codec[any]       = JSON[any]{}
	_ Codec[int]       = Gob[int]{}
	_ Codec[string]    = Brotli[string]{}
	_ Codec[[]float64] = Zstd[[]float64]{}
)

// String stores string as is
type String struct{}

func (String) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (String) Decode(d []byte) (string, error) {
	return string(d), nil
}

// Bytes stores []byte as is
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) {
	return v, nil
}

func (Bytes) Decode(d []byte) ([]byte, error) {
	return bytes.Clone(d), nil
}

// Uint64 stores uint64 as 8 bytes, big-endian so that encoded values
// sort the same way as numbers
type Uint64 struct{}

func (Uint64) Encode(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, v), nil
}

func (Uint64) Decode(d []byte) (uint64, error) {
	if len(d) != 8 {
		return 0, fmt.Errorf("codec: uint64 must be 8 bytes, got %d", len(d))
	}
	return binary.BigEndian.Uint64(d), nil
}

// Int64 stores int64 as 8 bytes, big-endian
type Int64 struct{}

func (Int64) Encode(v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, uint64(v)), nil
}

func (Int64) Decode(d []byte) (int64, error) {
	if len(d) != 8 {
		return 0, fmt.Errorf("codec: int64 must be 8 bytes, got %d", len(d))
	}
	return int64(binary.BigEndian.Uint64(d)), nil
}

// JSON stores values encoded with encoding/json.
// Note: when T is any, numbers decode as float64
type JSON[T any] struct{}

func (JSON[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[T]) Decode(d []byte) (T, error) {
	var v T
	err := json.Unmarshal(d, &v)
	return v, err
}

// Gob stores values encoded with encoding/gob. Every value carries its
// own type information so it's bigger than JSON for small values but
// round-trips all Go types gob supports.
type Gob[T any] struct{}

func (Gob[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gob[T]) Decode(d []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(d)).Decode(&v)
	return v, err
}

// Brotli compresses bytes produced by Codec with brotli.
// Level 0 means brotli.DefaultCompression.
type Brotli[T any] struct {
	Codec Codec[T]
	Level int
}

func (c Brotli[T]) Encode(v T) ([]byte, error) {
	d, err := c.Codec.Encode(v)
	if err != nil {
		return nil, err
	}
	level := c.Level
	if level == 0 {
		level = brotli.DefaultCompression
	}
	return u.BrCompressData(d, level)
}

func (c Brotli[T]) Decode(d []byte) (T, error) {
	d2, err := u.BrDecompressData(d)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("codec: brotli: %w", err)
	}
	return c.Codec.Decode(d2)
}

// Zstd compresses bytes produced by Codec with zstd
type Zstd[T any] struct {
	Codec Codec[T]
}

func (c Zstd[T]) Encode(v T) ([]byte, error) {
	d, err := c.Codec.Encode(v)
	if err != nil {
		return nil, err
	}
	return u.ZstdCompressData(d)
}

func (c Zstd[T]) Decode(d []byte) (T, error) {
	d2, err := u.ZstdDecompressData(d)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("codec: zstd: %w", err)
	}
	return c.Codec.Decode(d2)
}
