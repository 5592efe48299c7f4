package similar

import (
	"fmt"
	"strings"

	"github.com/nfnt/resize"
)

// Extensions lists the file extensions the image decoder understands.
var Extensions = []string{"jpg", "jpeg", "png", "bmp", "tif", "tiff", "gif", "webp"}

type HashAlg int

const (
	AlgMean HashAlg = iota
	AlgDifference
	AlgPerception
)

func (a HashAlg) String() string {
	switch a {
	case AlgMean:
		return "mean"
	case AlgDifference:
		return "difference"
	case AlgPerception:
		return "perception"
	default:
		return "unknown"
	}
}

func ParseHashAlg(s string) (HashAlg, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "average":
		return AlgMean, nil
	case "difference", "gradient", "":
		return AlgDifference, nil
	case "perception", "phash":
		return AlgPerception, nil
	default:
		return AlgDifference, fmt.Errorf("unknown hash algorithm %q", s)
	}
}

type ResizeFilter int

const (
	FilterLanczos3 ResizeFilter = iota
	FilterNearest
	FilterBilinear
	FilterBicubic
	FilterMitchellNetravali
)

func (f ResizeFilter) String() string {
	switch f {
	case FilterLanczos3:
		return "lanczos3"
	case FilterNearest:
		return "nearest"
	case FilterBilinear:
		return "bilinear"
	case FilterBicubic:
		return "bicubic"
	case FilterMitchellNetravali:
		return "mitchellnetravali"
	default:
		return "unknown"
	}
}

func (f ResizeFilter) interpolation() resize.InterpolationFunction {
	switch f {
	case FilterNearest:
		return resize.NearestNeighbor
	case FilterBilinear:
		return resize.Bilinear
	case FilterBicubic:
		return resize.Bicubic
	case FilterMitchellNetravali:
		return resize.MitchellNetravali
	default:
		return resize.Lanczos3
	}
}

func ParseResizeFilter(s string) (ResizeFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lanczos3", "":
		return FilterLanczos3, nil
	case "nearest":
		return FilterNearest, nil
	case "bilinear", "triangle":
		return FilterBilinear, nil
	case "bicubic", "catmullrom":
		return FilterBicubic, nil
	case "mitchellnetravali", "mitchell", "gaussian":
		return FilterMitchellNetravali, nil
	default:
		return FilterLanczos3, fmt.Errorf("unknown resize filter %q", s)
	}
}

// ImageEntry is one image file and its perceptual hash. Entries that failed
// to decode carry Error and an empty Hash; they are cached like any other
// so the failure is not retried until the file changes.
type ImageEntry struct {
	Path     string `msgpack:"path" json:"path"`
	Size     uint64 `msgpack:"size" json:"size"`
	Modified uint64 `msgpack:"modified" json:"modified"`
	Width    int    `msgpack:"width" json:"width"`
	Height   int    `msgpack:"height" json:"height"`
	Hash     []byte `msgpack:"hash" json:"hash,omitempty"`
	Error    string `msgpack:"error" json:"error,omitempty"`

	// Similarity is the Hamming distance to the cluster's parent hash.
	Similarity uint32 `msgpack:"-" json:"similarity"`
}

func (e ImageEntry) RecordPath() string     { return e.Path }
func (e ImageEntry) RecordSize() uint64     { return e.Size }
func (e ImageEntry) RecordModified() uint64 { return e.Modified }

// RefGroup is a cluster anchored on a reference image.
type RefGroup struct {
	Master ImageEntry   `json:"master"`
	Files  []ImageEntry `json:"files"`
}

type Info struct {
	Groups        int `json:"groups"`
	SimilarImages int `json:"similar_images"`
}

// Result is the outcome of one run. Exactly one of Groups and RefGroups is
// populated.
type Result struct {
	Referenced bool           `json:"referenced"`
	Groups     [][]ImageEntry `json:"groups,omitempty"`
	RefGroups  []RefGroup     `json:"ref_groups,omitempty"`
	Info       Info           `json:"info"`
	Warnings   []string       `json:"warnings,omitempty"`
}
