package duplicate

import (
	"fmt"
	"strings"

	"dupescan/internal/walker"
)

type CheckingMethod int

const (
	MethodName CheckingMethod = iota
	MethodSizeName
	MethodSize
	MethodHash
)

func (m CheckingMethod) String() string {
	switch m {
	case MethodName:
		return "name"
	case MethodSizeName:
		return "size_name"
	case MethodSize:
		return "size"
	case MethodHash:
		return "hash"
	default:
		return "unknown"
	}
}

func ParseCheckingMethod(s string) (CheckingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name":
		return MethodName, nil
	case "size_name", "size-name", "sizename":
		return MethodSizeName, nil
	case "size":
		return MethodSize, nil
	case "hash", "":
		return MethodHash, nil
	default:
		return MethodHash, fmt.Errorf("unknown checking method %q", s)
	}
}

// Group is a set of at least two entries considered duplicates.
// Name is set for name based methods, Size for size based ones and Hash
// for the hash method.
type Group struct {
	Name  string         `json:"name,omitempty"`
	Size  uint64         `json:"size,omitempty"`
	Hash  string         `json:"hash,omitempty"`
	Files []walker.Entry `json:"files"`
}

// RefGroup pairs one file from a reference directory with the non-reference
// files that duplicate it. Files is never empty.
type RefGroup struct {
	Name   string         `json:"name,omitempty"`
	Size   uint64         `json:"size,omitempty"`
	Hash   string         `json:"hash,omitempty"`
	Master walker.Entry   `json:"master"`
	Files  []walker.Entry `json:"files"`
}

// Stats aggregates one checking stage.
type Stats struct {
	Groups     int    `json:"groups"`
	Duplicates int    `json:"duplicates"`
	LostSpace  uint64 `json:"lost_space"`
}

type Info struct {
	ByName     Stats `json:"by_name"`
	BySizeName Stats `json:"by_size_name"`
	BySize     Stats `json:"by_size"`
	ByHash     Stats `json:"by_hash"`
}

// Result is the outcome of one finder run. Exactly one of Groups and
// RefGroups is populated, depending on whether reference directories
// were active.
type Result struct {
	Method     CheckingMethod `json:"method"`
	Referenced bool           `json:"referenced"`
	Groups     []Group        `json:"groups,omitempty"`
	RefGroups  []RefGroup     `json:"ref_groups,omitempty"`
	Info       Info           `json:"info"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Stats returns the statistics of the method that produced the result.
func (r *Result) Stats() Stats {
	switch r.Method {
	case MethodName:
		return r.Info.ByName
	case MethodSizeName:
		return r.Info.BySizeName
	case MethodSize:
		return r.Info.BySize
	default:
		return r.Info.ByHash
	}
}

func groupStats(groups []Group, countSpace bool) Stats {
	var s Stats
	for _, g := range groups {
		s.Groups++
		s.Duplicates += len(g.Files) - 1
		if countSpace {
			s.LostSpace += g.Files[0].Size * uint64(len(g.Files)-1)
		}
	}
	return s
}

func refGroupStats(groups []RefGroup, countSpace bool) Stats {
	var s Stats
	for _, g := range groups {
		s.Groups++
		s.Duplicates += len(g.Files)
		if countSpace {
			s.LostSpace += g.Master.Size * uint64(len(g.Files))
		}
	}
	return s
}
