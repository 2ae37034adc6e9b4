package variation

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/pierrec/lz4/v4"
)

// Compression indicates how (and whether) a stored page is compressed
type Compression uint32

const (
	CompressionDisabled Compression = iota
	CompressionZStandard
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionDisabled:
		return "none"
	case CompressionZStandard:
		return "zstd"
	case CompressionLZ4:
		return "lz4"

	default:
		return "Illegal selection"
	}
}

// ParseCompression accepts the names produced by String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "disabled":
		return CompressionDisabled, nil
	case "zstd", "zstandard":
		return CompressionZStandard, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return CompressionDisabled, pfx.Err(fmt.Errorf("Unsupported compression %q", s))
}

// Decode lets envconfig parse a Compression from the environment.
func (c *Compression) Decode(value string) error {
	v, err := ParseCompression(value)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Page blocks are framed as [uncompressed uint32][compressed uint32][data].
// A compressed size of 0 means the payload is stored raw, which happens when
// compression would not save at least a tenth of the bytes.
const blockHeaderSize = 8

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var packed []byte
	switch c {
	case CompressionDisabled:
	case CompressionZStandard:
		packed = compressZStandard(data)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, pfx.Err(err)
		}
		packed = buf[:n]
	default:
		return nil, pfx.Err(fmt.Errorf("Unsupported compression %d", c))
	}

	out := make([]byte, blockHeaderSize, blockHeaderSize+len(data))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9 {
		return append(out, data...), nil
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	return append(out, packed...), nil
}

func decompressBlock(block []byte, c Compression) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, pfx.Err(fmt.Errorf("Page of %d bytes is too small for its header", len(block)))
	}
	rawSize := binary.LittleEndian.Uint32(block[0:])
	packedSize := binary.LittleEndian.Uint32(block[4:])
	payload := block[blockHeaderSize:]

	if packedSize == 0 {
		if uint32(len(payload)) < rawSize {
			return nil, pfx.Err(fmt.Errorf("Page holds %d bytes, expected %d", len(payload), rawSize))
		}
		return payload[:rawSize], nil
	}
	if uint32(len(payload)) < packedSize {
		return nil, pfx.Err(fmt.Errorf("Compressed page holds %d bytes, expected %d", len(payload), packedSize))
	}
	payload = payload[:packedSize]

	out := make([]byte, rawSize)
	switch c {
	case CompressionZStandard:
		decoded, err := DecompressZStandard(out[:0], payload)
		if err != nil {
			return nil, pfx.Err(err)
		}
		out = decoded
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, pfx.Err(err)
		}
		out = out[:n]
	default:
		return nil, pfx.Err(fmt.Errorf("Page is compressed but the store compression is %s", c))
	}

	if uint32(len(out)) != rawSize {
		return nil, pfx.Err(fmt.Errorf("Decompressed %d bytes, expected %d", len(out), rawSize))
	}
	return out, nil
}
