package variation

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func compressZStandard(src []byte) []byte {
	enc, _ := zstdEncoderPool.Get().(*zstd.Encoder)
	if enc == nil {
		// NewWriter only fails on invalid options.
		enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	defer zstdEncoderPool.Put(enc)

	return enc.EncodeAll(src, nil)
}

// DecompressZStandard decompresses a zstd frame. If you have a buffer to use,
// you can pass it as dst to prevent allocation; the result is appended to
// dst[:0].
func DecompressZStandard(dst, src []byte) ([]byte, error) {
	dec, _ := zstdDecoderPool.Get().(*zstd.Decoder)
	if dec == nil {
		var err error
		dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
	}
	defer zstdDecoderPool.Put(dec)

	return dec.DecodeAll(src, dst[:0])
}
