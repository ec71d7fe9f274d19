package domain

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "shaker.dev/pkg/shaker/internal/model"
)

func seedOf(path string, content []byte) *m.SeedFile {
	return &m.SeedFile{Path: m.Path(path), Content: content, Extension: m.ExtensionOf(m.Path(path))}
}

func randomContent(rng *rand.Rand, n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(rng.UintN(256))
	}

	return content
}

func differingBytes(a, b []byte) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}

	return n
}

func mustMutator(t *testing.T, cfg m.MutationConfig) Mutator {
	t.Helper()

	mutator, err := NewMutator(cfg)
	require.NoError(t, err)

	return mutator
}

func TestNewMutator_RejectsInvalidConfig(t *testing.T) {
	cfg := m.DefaultMutationConfig()
	cfg.SameExtProbability = 1.2

	_, err := NewMutator(cfg)

	var cfgErr *m.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestMutate_SingleByteFlip(t *testing.T) {
	// One 100 byte .png seed, no size change, exactly one byte changed.
	cfg := m.DefaultMutationConfig()
	cfg.SizeChangeProbability = 0
	cfg.MinBytesChanged = 1
	cfg.MaxBytesChanged = 1
	cfg.MaxRelativeChange = 1.0

	mutator := mustMutator(t, cfg)
	corpusRng := rand.New(rand.NewPCG(7, 7))
	seed := seedOf("inputs/image.png", randomContent(corpusRng, 100))
	extensions := m.NewExtensionSet(".png")

	for i := range uint64(200) {
		candidate, err := mutator.Mutate(seed, extensions, rand.New(rand.NewPCG(i, 1)))
		require.NoError(t, err)

		require.Len(t, candidate.Content, 100)
		assert.Equal(t, 1, differingBytes(seed.Content, candidate.Content))
		assert.Equal(t, ".png", candidate.Extension)
		assert.False(t, candidate.ExtensionChanged)
		assert.Same(t, seed, candidate.Seed)
	}
}

func TestMutate_AlwaysSwitchesToTheOnlyAlternative(t *testing.T) {
	cfg := m.DefaultMutationConfig()
	cfg.SameExtProbability = 0

	mutator := mustMutator(t, cfg)
	extensions := m.NewExtensionSet(".jpg", "")

	jpg := seedOf("inputs/photo.jpg", bytes.Repeat([]byte{1}, 64))
	bare := seedOf("inputs/photo", bytes.Repeat([]byte{2}, 64))

	for i := range uint64(100) {
		candidate, err := mutator.Mutate(jpg, extensions, rand.New(rand.NewPCG(i, 2)))
		require.NoError(t, err)
		assert.Equal(t, "", candidate.Extension)
		assert.True(t, candidate.ExtensionChanged)

		candidate, err = mutator.Mutate(bare, extensions, rand.New(rand.NewPCG(i, 3)))
		require.NoError(t, err)
		assert.Equal(t, ".jpg", candidate.Extension)
	}
}

func TestMutate_SingleExtensionDegradesToKeep(t *testing.T) {
	cfg := m.DefaultMutationConfig()
	cfg.SameExtProbability = 0

	mutator := mustMutator(t, cfg)
	seed := seedOf("inputs/a.gif", []byte("GIF89a"))

	candidate, err := mutator.Mutate(seed, m.NewExtensionSet(".gif"), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, ".gif", candidate.Extension)
	assert.False(t, candidate.ExtensionChanged)
}

func TestMutate_EmptyExtensionSetIsAnError(t *testing.T) {
	mutator := mustMutator(t, m.DefaultMutationConfig())

	_, err := mutator.Mutate(seedOf("a.gif", []byte("x")), m.NewExtensionSet(), rand.New(rand.NewPCG(1, 1)))
	require.ErrorIs(t, err, ErrDegenerateExtensionSet)
}

func TestMutate_Properties(t *testing.T) {
	cfg := m.MutationConfig{
		SameExtProbability:    0.5,
		MinBytesChanged:       2,
		MaxBytesChanged:       20,
		MaxRelativeChange:     0.05,
		SizeChangeProbability: 0.5,
		BiggerSizeProbability: 0.5,
		MinSizeChange:         1,
		MaxSizeChange:         9,
	}
	mutator := mustMutator(t, cfg)

	contentRng := rand.New(rand.NewPCG(42, 42))
	extensions := m.NewExtensionSet(".png", ".jpg", "", ".bmp")
	seeds := []*m.SeedFile{
		seedOf("a.png", randomContent(contentRng, 0)),
		seedOf("b.jpg", randomContent(contentRng, 3)),
		seedOf("c", randomContent(contentRng, 40)),
		seedOf("d.bmp", randomContent(contentRng, 1000)),
	}

	for _, seed := range seeds {
		original := bytes.Clone(seed.Content)
		upper := max(min(cfg.MaxBytesChanged, int(cfg.MaxRelativeChange*float64(len(seed.Content)))), cfg.MinBytesChanged)

		for i := range uint64(300) {
			candidate, err := mutator.Mutate(seed, extensions, rand.New(rand.NewPCG(i, uint64(len(seed.Content)))))
			require.NoError(t, err)

			assert.True(t, extensions.Contains(candidate.Extension), "extension %q not in corpus", candidate.Extension)
			assert.Equal(t, len(seed.Content)+candidate.SizeDelta, len(candidate.Content))
			assert.GreaterOrEqual(t, len(candidate.Content), 0)

			if candidate.SizeDelta == 0 {
				assert.Len(t, candidate.Content, len(seed.Content))
			}

			if len(candidate.Content) > 0 {
				assert.GreaterOrEqual(t, candidate.BytesChanged, cfg.MinBytesChanged)
				assert.LessOrEqual(t, candidate.BytesChanged, upper)
			}
		}

		assert.Equal(t, original, seed.Content, "seed must not be modified")
	}
}

func TestMutate_KeepSizeWhenSizeChangeNeverDrawn(t *testing.T) {
	cfg := m.DefaultMutationConfig()
	cfg.SizeChangeProbability = 0

	mutator := mustMutator(t, cfg)
	seed := seedOf("a.bin", bytes.Repeat([]byte{0}, 333))

	for i := range uint64(100) {
		candidate, err := mutator.Mutate(seed, m.NewExtensionSet(".bin"), rand.New(rand.NewPCG(i, 9)))
		require.NoError(t, err)
		assert.Len(t, candidate.Content, 333)
		assert.Zero(t, candidate.SizeDelta)
	}
}

func TestMutate_EmptySeed(t *testing.T) {
	t.Run("shrink switches to growth", func(t *testing.T) {
		cfg := m.DefaultMutationConfig()
		cfg.SizeChangeProbability = 1
		cfg.BiggerSizeProbability = 0
		cfg.MinSizeChange = 3
		cfg.MaxSizeChange = 3

		mutator := mustMutator(t, cfg)

		candidate, err := mutator.Mutate(seedOf("empty", nil), m.NewExtensionSet(""), rand.New(rand.NewPCG(1, 1)))
		require.NoError(t, err)
		assert.Len(t, candidate.Content, 3)
		assert.Equal(t, 3, candidate.SizeDelta)
	})

	t.Run("no size change leaves nothing to flip", func(t *testing.T) {
		cfg := m.DefaultMutationConfig()
		cfg.SizeChangeProbability = 0

		mutator := mustMutator(t, cfg)

		candidate, err := mutator.Mutate(seedOf("empty", []byte{}), m.NewExtensionSet(""), rand.New(rand.NewPCG(1, 1)))
		require.NoError(t, err)
		assert.Empty(t, candidate.Content)
		assert.Zero(t, candidate.BytesChanged)
	})
}

func TestMutate_ShrinkClampsToBufferLength(t *testing.T) {
	cfg := m.DefaultMutationConfig()
	cfg.SizeChangeProbability = 1
	cfg.BiggerSizeProbability = 0
	cfg.MinSizeChange = 10
	cfg.MaxSizeChange = 10

	mutator := mustMutator(t, cfg)

	candidate, err := mutator.Mutate(seedOf("tiny", []byte{1, 2, 3, 4}), m.NewExtensionSet(""), rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)
	assert.Empty(t, candidate.Content)
	assert.Equal(t, -4, candidate.SizeDelta)
}

func TestMutate_RelativeBoundClampsUp(t *testing.T) {
	cfg := m.DefaultMutationConfig()
	cfg.SizeChangeProbability = 0
	cfg.MinBytesChanged = 3
	cfg.MaxBytesChanged = 50
	cfg.MaxRelativeChange = 0.01 // floor(0.01*10) == 0

	mutator := mustMutator(t, cfg)
	seed := seedOf("ten", bytes.Repeat([]byte{7}, 10))

	for i := range uint64(50) {
		candidate, err := mutator.Mutate(seed, m.NewExtensionSet(""), rand.New(rand.NewPCG(i, 4)))
		require.NoError(t, err)
		assert.Equal(t, 3, candidate.BytesChanged)
	}
}

func TestMutate_Deterministic(t *testing.T) {
	mutator := mustMutator(t, m.DefaultMutationConfig())
	seed := seedOf("inputs/a.png", randomContent(rand.New(rand.NewPCG(3, 3)), 2048))
	extensions := m.NewExtensionSet(".png", ".jpg")

	first, err := mutator.Mutate(seed, extensions, rand.New(rand.NewPCG(11, 12)))
	require.NoError(t, err)

	second, err := mutator.Mutate(seed, extensions, rand.New(rand.NewPCG(11, 12)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMaxFlips(t *testing.T) {
	mu := &mutator{cfg: m.MutationConfig{MinBytesChanged: 1, MaxBytesChanged: 50, MaxRelativeChange: 0.01}}

	tests := []struct {
		seedLen int
		want    int
	}{
		{0, 1},
		{99, 1},
		{100, 1},
		{250, 2},
		{4999, 49},
		{100000, 50},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mu.maxFlips(tt.seedLen), "seedLen %d", tt.seedLen)
	}
}

func TestDifferentByte(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))

	for current := range 256 {
		for range 20 {
			assert.NotEqual(t, byte(current), differentByte(rng, byte(current)))
		}
	}
}

func TestUniformInt(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	assert.Equal(t, 4, uniformInt(rng, 4, 4))
	assert.Equal(t, 4, uniformInt(rng, 4, 2))

	for range 100 {
		v := uniformInt(rng, 1, 7)
		assert.GreaterOrEqual(t, v, 1)
		assert.LessOrEqual(t, v, 7)
	}
}
