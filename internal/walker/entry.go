package walker

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

type SymlinkKind int

const (
	NonExistentFile SymlinkKind = iota
	InfiniteRecursion
)

func (k SymlinkKind) String() string {
	if k == InfiniteRecursion {
		return "infinite recursion"
	}
	return "non existent file"
}

// SymlinkInfo describes a link whose target cannot be resolved.
type SymlinkInfo struct {
	Destination string      `json:"destination"`
	Kind        SymlinkKind `json:"kind"`
}

// Entry is one collected file. Hash stays empty until a hashing stage
// fills it in.
type Entry struct {
	Path     string `msgpack:"path" json:"path"`
	Size     uint64 `msgpack:"size" json:"size"`
	Modified uint64 `msgpack:"modified" json:"modified"`
	Hash     string `msgpack:"hash" json:"hash,omitempty"`

	Dev     uint64       `msgpack:"-" json:"-"`
	Inode   uint64       `msgpack:"-" json:"-"`
	Symlink *SymlinkInfo `msgpack:"-" json:"symlink,omitempty"`
}

func newEntry(path string, info os.FileInfo) Entry {
	e := Entry{
		Path:     path,
		Size:     uint64(info.Size()),
		Modified: unixSeconds(info.ModTime()),
	}
	e.Dev, e.Inode = fileIdentity(info)
	return e
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}

// Name returns the base name of the entry.
func (e Entry) Name() string {
	return filepath.Base(e.Path)
}

func (e Entry) RecordPath() string     { return e.Path }
func (e Entry) RecordSize() uint64     { return e.Size }
func (e Entry) RecordModified() uint64 { return e.Modified }

// Key strategies for Walk.

func ByPath(e *Entry) string { return e.Path }

func ByName(e *Entry) string { return e.Name() }

func ByNameFold(e *Entry) string { return strings.ToLower(e.Name()) }

type SizeName struct {
	Size uint64
	Name string
}

func BySizeName(e *Entry) SizeName { return SizeName{Size: e.Size, Name: e.Name()} }

func BySizeNameFold(e *Entry) SizeName {
	return SizeName{Size: e.Size, Name: strings.ToLower(e.Name())}
}

func BySize(e *Entry) uint64 { return e.Size }

// InodeKey identifies the underlying file. Path is set only when the
// platform reports no inode, so such entries never collapse together.
type InodeKey struct {
	Dev   uint64
	Inode uint64
	Path  string
}

func ByInode(e *Entry) InodeKey {
	if e.Inode == 0 {
		return InodeKey{Path: e.Path}
	}
	return InodeKey{Dev: e.Dev, Inode: e.Inode}
}
