package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"shaker.dev/pkg/shaker/internal/adapter"
	m "shaker.dev/pkg/shaker/internal/model"
)

// ErrEmptyCorpus is returned when the seed directory yields no files. No test
// can run without at least one seed.
var ErrEmptyCorpus = errors.New("empty corpus")

// LoadCorpus reads every regular entry below dir as a seed, in lexical path
// order, and collects the set of their extensions. A missing directory counts
// as an empty one.
func LoadCorpus(ctx context.Context, fsAdapter adapter.FSAdapter, dir m.Path) (m.Corpus, error) {
	var seeds []m.SeedFile

	err := fsAdapter.Walk(ctx, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == string(dir) && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}

			return err
		}

		if d.IsDir() {
			return nil
		}

		content, err := fsAdapter.ReadFile(ctx, m.Path(path))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read seed", "path", path, "error", err)
			return fmt.Errorf("read seed %s: %w", path, err)
		}

		sum := sha256.Sum256(content)
		seeds = append(seeds, m.SeedFile{
			Path:      m.Path(path),
			Content:   content,
			Extension: m.ExtensionOf(m.Path(path)),
			Hash:      hex.EncodeToString(sum[:]),
		})

		return nil
	})
	if err != nil {
		return m.Corpus{}, fmt.Errorf("load corpus %s: %w", dir, err)
	}

	if len(seeds) == 0 {
		return m.Corpus{}, fmt.Errorf("%w: please fill the %s directory before fuzzing", ErrEmptyCorpus, dir)
	}

	extensions := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		extensions = append(extensions, seed.Extension)
	}

	slog.DebugContext(ctx, "Loaded corpus", "dir", dir, "seeds", len(seeds))

	return m.Corpus{Seeds: seeds, Extensions: m.NewExtensionSet(extensions...)}, nil
}
