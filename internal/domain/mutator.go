// Package domain contains the fuzzing core: corpus loading, the mutation
// engine, the execution oracle and the session workflow.
package domain

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	m "shaker.dev/pkg/shaker/internal/model"
)

// ErrDegenerateExtensionSet is returned when an extension change is requested
// but the corpus offers no extension to change to.
var ErrDegenerateExtensionSet = errors.New("no alternative extension available")

// Mutator derives candidates from seeds. Given the same rng stream it always
// produces the same candidate.
//
// A flipped byte is drawn uniformly from the 255 values that differ from the
// byte it replaces, so every flip is an observable change and a candidate with
// one flip differs from its seed in exactly one position.
type Mutator interface {
	Mutate(seed *m.SeedFile, extensions m.ExtensionSet, rng *rand.Rand) (m.MutatedCandidate, error)
}

type mutator struct {
	cfg m.MutationConfig
}

// NewMutator validates cfg and returns a Mutator bound to it.
func NewMutator(cfg m.MutationConfig) (Mutator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &mutator{cfg: cfg}, nil
}

// Mutate picks the output extension, optionally grows or shrinks the buffer,
// then overwrites a bounded number of bytes.
func (mu *mutator) Mutate(seed *m.SeedFile, extensions m.ExtensionSet, rng *rand.Rand) (m.MutatedCandidate, error) {
	ext, changed, err := mu.chooseExtension(seed.Extension, extensions, rng)
	if err != nil {
		return m.MutatedCandidate{}, err
	}

	content, delta := mu.changeSize(bytes.Clone(seed.Content), rng)
	flips := mu.flipBytes(content, len(seed.Content), rng)

	return m.MutatedCandidate{
		Seed:             seed,
		Content:          content,
		Extension:        ext,
		ExtensionChanged: changed,
		SizeDelta:        delta,
		BytesChanged:     flips,
	}, nil
}

func (mu *mutator) chooseExtension(current string, extensions m.ExtensionSet, rng *rand.Rand) (string, bool, error) {
	if extensions.Len() == 0 {
		return "", false, fmt.Errorf("%w: corpus has no extensions", ErrDegenerateExtensionSet)
	}

	keep := rng.Float64() < mu.cfg.SameExtProbability
	if keep || extensions.Len() == 1 {
		return current, false, nil
	}

	others := extensions.Without(current)
	if len(others) == 0 {
		return "", false, fmt.Errorf("%w: only %q in corpus", ErrDegenerateExtensionSet, current)
	}

	return others[rng.IntN(len(others))], true, nil
}

// changeSize inserts or removes single bytes, recomputing the valid index
// range after every edit. A shrink drawn against an empty buffer grows it
// instead.
func (mu *mutator) changeSize(content []byte, rng *rand.Rand) ([]byte, int) {
	if rng.Float64() >= mu.cfg.SizeChangeProbability {
		return content, 0
	}

	grow := rng.Float64() < mu.cfg.BiggerSizeProbability
	amount := uniformInt(rng, mu.cfg.MinSizeChange, mu.cfg.MaxSizeChange)

	if !grow && len(content) == 0 {
		grow = true
	}

	if grow {
		for range amount {
			index := rng.IntN(len(content) + 1)
			content = slices.Insert(content, index, randomByte(rng))
		}

		return content, amount
	}

	amount = min(amount, len(content))
	for range amount {
		index := rng.IntN(len(content))
		content = slices.Delete(content, index, index+1)
	}

	return content, -amount
}

// flipBytes overwrites count bytes of content in place, where count is bounded
// by the original seed length. Indices may repeat. Each write stores a value
// different from the one it replaces.
func (mu *mutator) flipBytes(content []byte, seedLen int, rng *rand.Rand) int {
	count := uniformInt(rng, mu.cfg.MinBytesChanged, mu.maxFlips(seedLen))
	if len(content) == 0 {
		return 0
	}

	for range count {
		index := rng.IntN(len(content))
		content[index] = differentByte(rng, content[index])
	}

	return count
}

// maxFlips is min(MaxBytesChanged, floor(MaxRelativeChange*seedLen)), never
// below MinBytesChanged.
func (mu *mutator) maxFlips(seedLen int) int {
	relative := int(math.Floor(mu.cfg.MaxRelativeChange * float64(seedLen)))

	return max(min(mu.cfg.MaxBytesChanged, relative), mu.cfg.MinBytesChanged)
}

// uniformInt draws from [lo, hi]; hi below lo yields lo.
func uniformInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}

	return lo + rng.IntN(hi-lo+1)
}

func randomByte(rng *rand.Rand) byte {
	return byte(rng.UintN(256))
}

func differentByte(rng *rand.Rand, current byte) byte {
	b := byte(rng.UintN(255))
	if b >= current {
		b++
	}

	return b
}
