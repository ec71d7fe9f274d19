// Package model defines the data structures shared by the fuzzing harness.
package model

import (
	"path/filepath"
	"slices"
	"strings"
)

// Path represents a file system path.
type Path string

// SeedFile is an original, unmodified input used as the basis for mutation.
type SeedFile struct {
	Path      Path
	Content   []byte
	Extension string // lower-cased, with separator, or empty
	Hash      string // SHA-256 of Content
}

// ExtensionOf returns the lower-cased extension of path including the separator.
// A name without a suffix yields the empty extension. The suffix always starts
// at the last dot of the base name, so a dotfile such as ".bashrc" is its own
// extension.
func ExtensionOf(path Path) string {
	return strings.ToLower(filepath.Ext(string(path)))
}

// ExtensionSet is the sorted set of distinct extensions observed in a corpus.
// The empty extension is a valid member.
type ExtensionSet struct {
	members []string
}

// NewExtensionSet builds a set from the given extensions, dropping duplicates.
func NewExtensionSet(extensions ...string) ExtensionSet {
	members := slices.Clone(extensions)
	slices.Sort(members)

	return ExtensionSet{members: slices.Compact(members)}
}

// Len returns the number of distinct extensions.
func (s ExtensionSet) Len() int {
	return len(s.members)
}

// Contains reports whether ext is a member of the set.
func (s ExtensionSet) Contains(ext string) bool {
	_, found := slices.BinarySearch(s.members, ext)
	return found
}

// Members returns a copy of the sorted members.
func (s ExtensionSet) Members() []string {
	return slices.Clone(s.members)
}

// Without returns the sorted members other than ext.
func (s ExtensionSet) Without(ext string) []string {
	out := make([]string, 0, len(s.members))

	for _, member := range s.members {
		if member != ext {
			out = append(out, member)
		}
	}

	return out
}

// Corpus holds the seeds of a session in lexical path order.
type Corpus struct {
	Seeds      []SeedFile
	Extensions ExtensionSet
}
