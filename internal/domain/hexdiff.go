package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// HexDiff renders a unified diff of the hex dumps of two buffers, one context
// line around each change.
func HexDiff(fromName, toName string, from, to []byte) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(hex.Dump(from)),
		B:        difflib.SplitLines(hex.Dump(to)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  1,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("hex diff: %w", err)
	}

	return text, nil
}
