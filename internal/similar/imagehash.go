package similar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/h2non/filetype"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// headerSize is enough for filetype to recognise every image format.
const headerSize = 261

var errNotImage = errors.New("not a supported image")

// decodeImage sniffs the header before handing the file to image.Decode.
func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if !filetype.IsImage(head[:n]) {
		return nil, errNotImage
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// imageHasher turns decoded images into size*size bit hashes.
type imageHasher struct {
	size   int
	alg    HashAlg
	filter ResizeFilter
}

// workScale bounds the pre-resize so large photos are shrunk with the
// configured filter before the hash function resamples them again.
const workScale = 8

func (h imageHasher) hash(img image.Image) ([]byte, error) {
	work := uint(h.size * workScale)
	b := img.Bounds()
	if uint(b.Dx()) > work || uint(b.Dy()) > work {
		img = resize.Resize(work, work, img, h.filter.interpolation())
	}

	var (
		ext *goimagehash.ExtImageHash
		err error
	)
	switch h.alg {
	case AlgMean:
		ext, err = goimagehash.ExtAverageHash(img, h.size, h.size)
	case AlgPerception:
		ext, err = goimagehash.ExtPerceptionHash(img, h.size, h.size)
	default:
		ext, err = goimagehash.ExtDifferenceHash(img, h.size, h.size)
	}
	if err != nil {
		return nil, err
	}

	words := ext.GetHash()
	out := make([]byte, 8*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint64(out[8*i:], w)
	}
	return out, nil
}

// hashFile fills Width, Height and Hash of e, or Error on failure.
func (h imageHasher) hashFile(e *ImageEntry) {
	img, err := decodeImage(e.Path)
	if err != nil {
		e.Error = err.Error()
		return
	}
	b := img.Bounds()
	e.Width, e.Height = b.Dx(), b.Dy()

	sum, err := h.hash(img)
	if err != nil {
		e.Error = fmt.Sprintf("failed to hash image: %v", err)
		return
	}
	e.Hash = sum
}

// isBroken reports hashes that are all zero or all one bits. Flat or
// failed images produce them and would match each other spuriously.
func isBroken(hash []byte) bool {
	if len(hash) == 0 {
		return true
	}
	zero, one := true, true
	for _, b := range hash {
		if b != 0x00 {
			zero = false
		}
		if b != 0xFF {
			one = false
		}
	}
	return zero || one
}
