package hash

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	stdhash "hash"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

const (
	// ChunkSize is the read size used when streaming a file into a hasher.
	ChunkSize = 16 * 1024
	// PrehashBufferSize is how many leading bytes a prehash covers.
	PrehashBufferSize = 16 * 1024
)

type Type int

const (
	Blake3 Type = iota
	CRC32
	XXH3
)

func (t Type) String() string {
	switch t {
	case Blake3:
		return "blake3"
	case CRC32:
		return "crc32"
	case XXH3:
		return "xxh3"
	default:
		return "unknown"
	}
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blake3", "":
		return Blake3, nil
	case "crc32":
		return CRC32, nil
	case "xxh3", "xxhash3", "xxhash":
		return XXH3, nil
	default:
		return Blake3, fmt.Errorf("unknown hash type %q", s)
	}
}

// Hasher accepts bytes through Write and renders the digest as a string.
type Hasher interface {
	io.Writer
	Sum() string
}

func New(t Type) Hasher {
	switch t {
	case CRC32:
		return &crcHasher{h: crc32.NewIEEE()}
	case XXH3:
		return &xxh3Hasher{h: xxh3.New()}
	default:
		return &blake3Hasher{h: blake3.New()}
	}
}

type blake3Hasher struct{ h *blake3.Hasher }

func (b *blake3Hasher) Write(p []byte) (int, error) { return b.h.Write(p) }
func (b *blake3Hasher) Sum() string                 { return hex.EncodeToString(b.h.Sum(nil)) }

type crcHasher struct{ h stdhash.Hash32 }

func (c *crcHasher) Write(p []byte) (int, error) { return c.h.Write(p) }
func (c *crcHasher) Sum() string                 { return strconv.FormatUint(uint64(c.h.Sum32()), 16) }

type xxh3Hasher struct{ h *xxh3.Hasher }

func (x *xxh3Hasher) Write(p []byte) (int, error) { return x.h.Write(p) }
func (x *xxh3Hasher) Sum() string                 { return strconv.FormatUint(x.h.Sum64(), 16) }

// HashFile streams the file through a hasher of type t using buf as the
// read buffer. A positive limit hashes only the first limit bytes.
// The context is checked before every chunk; on cancellation ctx.Err() is
// returned.
func HashFile(ctx context.Context, path string, t Type, buf []byte, limit int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if len(buf) == 0 {
		buf = make([]byte, ChunkSize)
	}

	h := New(t)
	var r io.Reader = file
	if limit > 0 {
		r = io.LimitReader(file, limit)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	return h.Sum(), nil
}

// HashBytes hashes an in-memory buffer.
func HashBytes(t Type, data []byte) string {
	h := New(t)
	h.Write(data)
	return h.Sum()
}
