// Package cache persists path-keyed hash records between runs.
//
// A cache file is a msgpack encoded map of path to record, compressed with
// zstd and followed by an 8 byte big-endian xxhash64 checksum of the
// compressed payload. Records are validated by callers, not by the store:
// a record is reusable only when its size and modification time still
// match the file on disk.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DuplicatesVersion is bumped whenever walker.Entry's encoding changes.
	DuplicatesVersion = 1
	// ImagesVersion is bumped whenever the image record encoding changes.
	ImagesVersion = 1

	checksumSize = 8
	appDir       = "dupescan"
)

var errChecksum = errors.New("checksum mismatch")

// Record is anything the store can persist.
type Record interface {
	RecordPath() string
	RecordSize() uint64
	RecordModified() uint64
}

type Store struct {
	fs     afero.Fs
	dir    string
	logger zerolog.Logger
}

func NewStore(fs afero.Fs, dir string, logger zerolog.Logger) *Store {
	return &Store{fs: fs, dir: dir, logger: logger}
}

// DefaultDir returns the per-user cache directory for this tool.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache dir: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// DuplicatesName names the duplicate finder cache for a hash type.
func DuplicatesName(hashType string, prehash bool) string {
	variant := ""
	if prehash {
		variant = "_prehash"
	}
	return fmt.Sprintf("cache_duplicates_%s%s_v%d.bin", strings.ToUpper(hashType), variant, DuplicatesVersion)
}

// ImagesName names the similar images cache for one hashing setup.
func ImagesName(hashSize int, alg, filter string) string {
	return fmt.Sprintf("cache_similar_images_%d_%s_%s_v%d.bin", hashSize, strings.ToUpper(alg), strings.ToUpper(filter), ImagesVersion)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Valid reports whether a cached record still describes a file of the
// given size and modification time.
func Valid[T Record](rec T, size, modified uint64) bool {
	return rec.RecordSize() == size && rec.RecordModified() == modified
}

// Load reads the named cache. A missing file gives an empty map without
// warnings; a corrupt file gives an empty map and a warning. With
// deleteOutdated, records whose path no longer exists are dropped.
func Load[T Record](s *Store, name string, deleteOutdated bool) (map[string]T, []string) {
	records := make(map[string]T)
	path := s.path(name)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return records, nil
		}
		return records, []string{fmt.Sprintf("cannot open cache file %s: %v", path, err)}
	}

	payload, err := unseal(data)
	if err != nil {
		return records, []string{fmt.Sprintf("cannot load cache file %s: %v", path, err)}
	}

	var decoded map[string]T
	if err := msgpack.Unmarshal(payload, &decoded); err != nil {
		return records, []string{fmt.Sprintf("cannot decode cache file %s: %v", path, err)}
	}

	for p, rec := range decoded {
		if deleteOutdated {
			if _, err := s.fs.Stat(p); err != nil {
				continue
			}
		}
		records[p] = rec
	}

	s.logger.Debug().Str("cache", name).Int("records", len(records)).Int("dropped", len(decoded)-len(records)).Msg("cache loaded")
	return records, nil
}

// Save writes every record with size >= minSize to the named cache,
// replacing the previous file atomically. With saveJSON an indented JSON
// copy is written next to it for inspection.
func Save[T Record](s *Store, name string, records map[string]T, minSize uint64, saveJSON bool) []string {
	kept := make(map[string]T, len(records))
	for p, rec := range records {
		if rec.RecordSize() >= minSize {
			kept[p] = rec
		}
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return []string{fmt.Sprintf("cannot create cache dir %s: %v", s.dir, err)}
	}

	payload, err := msgpack.Marshal(kept)
	if err != nil {
		return []string{fmt.Sprintf("cannot encode cache %s: %v", name, err)}
	}

	var warnings []string
	if err := s.writeAtomic(s.path(name), seal(payload)); err != nil {
		warnings = append(warnings, fmt.Sprintf("cannot save cache %s: %v", name, err))
	}

	if saveJSON {
		js, err := json.MarshalIndent(kept, "", "  ")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot encode JSON cache %s: %v", name, err))
		} else if err := s.writeAtomic(s.path(jsonName(name)), js); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot save JSON cache %s: %v", name, err))
		}
	}

	s.logger.Debug().Str("cache", name).Int("records", len(kept)).Msg("cache saved")
	return warnings
}

func jsonName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".json"
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

func seal(payload []byte) []byte {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	defer enc.Close()

	compressed := enc.EncodeAll(payload, nil)
	sum := make([]byte, checksumSize)
	binary.BigEndian.PutUint64(sum, xxhash.Sum64(compressed))
	return append(compressed, sum...)
}

func unseal(data []byte) ([]byte, error) {
	if len(data) < checksumSize {
		return nil, errChecksum
	}
	compressed, sum := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	if binary.BigEndian.Uint64(sum) != xxhash.Sum64(compressed) {
		return nil, errChecksum
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return dec.DecodeAll(compressed, nil)
}
