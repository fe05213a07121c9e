package encoding

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the frame header every zstd payload starts with.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// maxDecompressedSize caps a single decompressed frame at 16MB.
const maxDecompressedSize = 16 << 20

var (
	decoderPool = sync.Pool{
		New: func() interface{} {
			dec, err := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderMaxMemory(maxDecompressedSize),
			)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	encoderPool = sync.Pool{
		New: func() interface{} {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				return nil
			}
			return enc
		},
	}
)

// IsCompressed reports whether data is a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Decompress returns data unchanged unless it is a zstd frame, in which case
// the decompressed payload is returned.
func Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}

	dec, ok := decoderPool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		return nil, fmt.Errorf("zstd decoder unavailable")
	}
	defer decoderPool.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// Compress wraps data in a zstd frame.
func Compress(data []byte) ([]byte, error) {
	enc, ok := encoderPool.Get().(*zstd.Encoder)
	if !ok || enc == nil {
		return nil, fmt.Errorf("zstd encoder unavailable")
	}
	defer encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}
