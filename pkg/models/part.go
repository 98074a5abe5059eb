package models

import (
	"fmt"
	"slices"
	"strings"
)

// Part is a named unit of authoring work on a song that a collaborator can claim.
type Part string

const (
	PartTempoMap   Part = "tempo_map"
	PartDrums      Part = "drums"
	PartBass       Part = "bass"
	PartGuitar     Part = "guitar"
	PartVocals     Part = "vocals"
	PartHarmonies  Part = "harmonies"
	PartKeys       Part = "keys"
	PartProKeys    Part = "pro_keys"
	PartProGuitar  Part = "pro_guitar"
	PartProBass    Part = "pro_bass"
	PartAnimations Part = "animations"
	PartVenue      Part = "venue"
	PartOverdrive  Part = "overdrive"
	PartLyrics     Part = "lyrics"
)

// partOrder is the canonical vocabulary. Sets are always kept in this order.
var partOrder = []Part{
	PartTempoMap,
	PartDrums,
	PartBass,
	PartGuitar,
	PartVocals,
	PartHarmonies,
	PartKeys,
	PartProKeys,
	PartProGuitar,
	PartProBass,
	PartAnimations,
	PartVenue,
	PartOverdrive,
	PartLyrics,
}

var partRank = func() map[Part]int {
	rank := make(map[Part]int, len(partOrder))
	for i, p := range partOrder {
		rank[p] = i
	}

	return rank
}()

// KnownParts returns the full part vocabulary in canonical order.
func KnownParts() []Part {
	return slices.Clone(partOrder)
}

// IsValid reports whether the part belongs to the vocabulary.
func (p Part) IsValid() bool {
	_, ok := partRank[p]

	return ok
}

// ParsePart converts a caller supplied name into a Part.
func ParsePart(name string) (Part, error) {
	p := Part(strings.ToLower(strings.TrimSpace(name)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPart, name)
	}

	return p, nil
}

// PartSet is a duplicate-free set of parts kept in canonical order.
type PartSet []Part

// NewPartSet builds a set from arbitrary parts, dropping duplicates. Unknown parts are rejected.
func NewPartSet(parts ...Part) (PartSet, error) {
	set := make(PartSet, 0, len(parts))

	for _, p := range parts {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPart, string(p))
		}

		if !slices.Contains(set, p) {
			set = append(set, p)
		}
	}

	set.sort()

	return set, nil
}

// ParsePartSet parses part names into a set.
func ParsePartSet(names []string) (PartSet, error) {
	parts := make([]Part, 0, len(names))

	for _, name := range names {
		p, err := ParsePart(name)
		if err != nil {
			return nil, err
		}

		parts = append(parts, p)
	}

	return NewPartSet(parts...)
}

// MustPartSet is NewPartSet for literals known to be valid.
func MustPartSet(parts ...Part) PartSet {
	set, err := NewPartSet(parts...)
	if err != nil {
		panic(err)
	}

	return set
}

func (s PartSet) sort() {
	slices.SortFunc(s, func(a, b Part) int {
		return partRank[a] - partRank[b]
	})
}

func (s PartSet) Empty() bool {
	return len(s) == 0
}

func (s PartSet) Contains(p Part) bool {
	return slices.Contains(s, p)
}

// Minus returns the parts of s that are not in other.
func (s PartSet) Minus(other PartSet) PartSet {
	out := make(PartSet, 0, len(s))

	for _, p := range s {
		if !other.Contains(p) {
			out = append(out, p)
		}
	}

	return out
}

func (s PartSet) Union(other PartSet) PartSet {
	out := slices.Clone(s)

	for _, p := range other {
		if !out.Contains(p) {
			out = append(out, p)
		}
	}

	out.sort()

	return out
}

// Intersects reports whether the two sets share at least one part.
func (s PartSet) Intersects(other PartSet) bool {
	for _, p := range s {
		if other.Contains(p) {
			return true
		}
	}

	return false
}

func (s PartSet) IsSubsetOf(other PartSet) bool {
	for _, p := range s {
		if !other.Contains(p) {
			return false
		}
	}

	return true
}

func (s PartSet) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = string(p)
	}

	return out
}

func (s PartSet) String() string {
	return strings.Join(s.Strings(), ",")
}
