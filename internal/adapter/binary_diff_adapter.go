package adapter

import (
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// BinaryDiffAdapter computes and applies compact binary deltas.
type BinaryDiffAdapter interface {
	// Diff returns a patch that turns oldContent into newContent.
	Diff(oldContent, newContent []byte) ([]byte, error)
	// Patch applies a patch produced by Diff to oldContent.
	Patch(oldContent, patch []byte) ([]byte, error)
}

// BsdiffAdapter produces BSDIFF40 patches.
type BsdiffAdapter struct{}

// NewBsdiffAdapter constructs a BsdiffAdapter.
func NewBsdiffAdapter() *BsdiffAdapter {
	return &BsdiffAdapter{}
}

// Diff implements BinaryDiffAdapter.
func (a *BsdiffAdapter) Diff(oldContent, newContent []byte) ([]byte, error) {
	patch, err := bsdiff.Bytes(oldContent, newContent)
	if err != nil {
		return nil, fmt.Errorf("bsdiff: %w", err)
	}

	return patch, nil
}

// Patch implements BinaryDiffAdapter.
func (a *BsdiffAdapter) Patch(oldContent, patch []byte) ([]byte, error) {
	content, err := bspatch.Bytes(oldContent, patch)
	if err != nil {
		return nil, fmt.Errorf("bspatch: %w", err)
	}

	return content, nil
}
