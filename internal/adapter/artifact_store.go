package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	m "shaker.dev/pkg/shaker/internal/model"
	"shaker.dev/pkg/shaker/pkg/journal"
)

const (
	manifestFileName = "manifest.yaml"
	journalFileName  = "journal.gob"
)

// ErrRecordNotFound is returned when a session journal has no entry for a test.
var ErrRecordNotFound = errors.New("test record not found")

// StoreLayout describes where artifacts go. Session directories are created
// below LogRoot and CrashRoot; MainLog is a single file shared by all sessions.
type StoreLayout struct {
	LogRoot   m.Path
	CrashRoot m.Path
	MainLog   m.Path
	DiffExt   string
}

// ArtifactStore opens sessions and reads back what earlier sessions stored.
type ArtifactStore interface {
	// OpenSession creates the per-session directories and opens the main log,
	// mirroring every line to mirror.
	OpenSession(ctx context.Context, stamp string, mirror io.Writer) (Session, error)
	// ReadManifest loads the manifest of a stored session directory.
	ReadManifest(ctx context.Context, sessionDir m.Path) (m.SessionManifest, error)
	// ReadRecord finds the journal entry of a test in a stored session directory.
	ReadRecord(ctx context.Context, sessionDir m.Path, number int) (m.TestRecord, error)
}

// Session is the artifact sink of one fuzzing session. Its methods are safe for
// concurrent use.
type Session interface {
	// Dir returns the session's diff directory.
	Dir() m.Path
	// Log appends a line to the main log and mirrors it.
	Log(ctx context.Context, line string) error
	// Passed stores a diff of candidate against seed and deletes the candidate.
	Passed(ctx context.Context, seed m.SeedFile, candidate m.Path) (m.Path, error)
	// Crashed moves candidate verbatim into the crash archive.
	Crashed(ctx context.Context, candidate m.Path) (m.Path, error)
	// Record appends a test record to the session journal.
	Record(ctx context.Context, record m.TestRecord) error
	// WriteManifest replaces the session manifest.
	WriteManifest(ctx context.Context, manifest m.SessionManifest) error
	// Close releases the main log and journal.
	Close(ctx context.Context) error
}

// LocalArtifactStore keeps artifacts on the local filesystem.
type LocalArtifactStore struct {
	fs     FSAdapter
	differ BinaryDiffAdapter
	layout StoreLayout
}

// NewLocalArtifactStore constructs a LocalArtifactStore.
func NewLocalArtifactStore(fs FSAdapter, differ BinaryDiffAdapter, layout StoreLayout) *LocalArtifactStore {
	layout.DiffExt = NormalizeExt(layout.DiffExt)

	return &LocalArtifactStore{fs: fs, differ: differ, layout: layout}
}

// OpenSession implements ArtifactStore.
func (s *LocalArtifactStore) OpenSession(ctx context.Context, stamp string, mirror io.Writer) (Session, error) {
	diffDir := s.fs.JoinPath(ctx, string(s.layout.LogRoot), stamp)
	crashDir := s.fs.JoinPath(ctx, string(s.layout.CrashRoot), stamp)

	for _, dir := range []m.Path{diffDir, crashDir} {
		if err := s.fs.MkdirAll(ctx, dir); err != nil {
			slog.ErrorContext(ctx, "Failed to create session directory", "dir", dir, "error", err)
			return nil, fmt.Errorf("create session directory %s: %w", dir, err)
		}
	}

	if dir := filepath.Dir(string(s.layout.MainLog)); dir != "." {
		if err := s.fs.MkdirAll(ctx, m.Path(dir)); err != nil {
			return nil, fmt.Errorf("create main log directory: %w", err)
		}
	}

	logFile, err := s.fs.OpenAppend(ctx, s.layout.MainLog)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open main log", "path", s.layout.MainLog, "error", err)
		return nil, fmt.Errorf("open main log: %w", err)
	}

	records, err := journal.Create[m.TestRecord](string(s.fs.JoinPath(ctx, string(diffDir), journalFileName)))
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("create session journal: %w", err)
	}

	slog.DebugContext(ctx, "Opened session", "diffDir", diffDir, "crashDir", crashDir)

	return &localSession{
		fs:       s.fs,
		differ:   s.differ,
		diffDir:  diffDir,
		crashDir: crashDir,
		diffExt:  s.layout.DiffExt,
		log:      newSessionLog(logFile, mirror),
		records:  records,
	}, nil
}

// ReadManifest implements ArtifactStore.
func (s *LocalArtifactStore) ReadManifest(ctx context.Context, sessionDir m.Path) (m.SessionManifest, error) {
	var manifest m.SessionManifest

	content, err := s.fs.ReadFile(ctx, s.fs.JoinPath(ctx, string(sessionDir), manifestFileName))
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}

	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return manifest, fmt.Errorf("parse manifest: %w", err)
	}

	return manifest, nil
}

// ReadRecord implements ArtifactStore.
func (s *LocalArtifactStore) ReadRecord(ctx context.Context, sessionDir m.Path, number int) (m.TestRecord, error) {
	var (
		found m.TestRecord
		ok    bool
	)

	records, err := journal.Open[m.TestRecord](string(s.fs.JoinPath(ctx, string(sessionDir), journalFileName)))
	if err != nil {
		return found, fmt.Errorf("open session journal: %w", err)
	}

	defer func() { _ = records.Close() }()

	slog.DebugContext(ctx, "Reading test record", "journal", records.Path(), "records", records.Len(), "number", number)

	// Sequential sessions journal test N at index N-1. Parallel ones append
	// in completion order, so a miss falls back to a scan.
	if number > 0 && uint64(number) <= records.Len() {
		record, err := records.Get(uint64(number - 1))
		if err != nil {
			return found, fmt.Errorf("read session journal: %w", err)
		}

		if record.Number == number {
			return record, nil
		}
	}

	err = records.Range(func(_ uint64, record m.TestRecord) error {
		if record.Number == number {
			found, ok = record, true
			return io.EOF
		}

		return nil
	})
	if err != nil {
		return found, fmt.Errorf("read session journal: %w", err)
	}

	if !ok {
		return found, fmt.Errorf("%w: test #%d in %s", ErrRecordNotFound, number, sessionDir)
	}

	return found, nil
}

type localSession struct {
	fs       FSAdapter
	differ   BinaryDiffAdapter
	diffDir  m.Path
	crashDir m.Path
	diffExt  string
	log      *sessionLog
	records  journal.Journal[m.TestRecord]
}

func (s *localSession) Dir() m.Path {
	return s.diffDir
}

func (s *localSession) Log(_ context.Context, line string) error {
	return s.log.Log(line)
}

// Passed keeps passing-run storage proportional to the mutation size: only the
// delta against the seed is written. The candidate is removed only after the
// diff is safely on disk.
func (s *localSession) Passed(ctx context.Context, seed m.SeedFile, candidate m.Path) (m.Path, error) {
	content, err := s.fs.ReadFile(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("read candidate: %w", err)
	}

	patch, err := s.differ.Diff(seed.Content, content)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to diff candidate", "seed", seed.Path, "candidate", candidate, "error", err)
		return "", fmt.Errorf("diff candidate against %s: %w", seed.Path, err)
	}

	target := s.fs.JoinPath(ctx, string(s.diffDir), filepath.Base(string(candidate))+s.diffExt)

	if err := s.fs.WriteFile(ctx, target, patch, 0o600); err != nil {
		slog.ErrorContext(ctx, "Failed to write diff", "path", target, "error", err)
		return "", fmt.Errorf("write diff: %w", err)
	}

	if err := s.fs.Remove(ctx, candidate); err != nil {
		return target, fmt.Errorf("remove candidate: %w", err)
	}

	return target, nil
}

func (s *localSession) Crashed(ctx context.Context, candidate m.Path) (m.Path, error) {
	target := s.fs.JoinPath(ctx, string(s.crashDir), filepath.Base(string(candidate)))

	if err := s.fs.Move(ctx, candidate, target); err != nil {
		slog.ErrorContext(ctx, "Failed to archive crash", "candidate", candidate, "target", target, "error", err)
		return "", fmt.Errorf("archive crash: %w", err)
	}

	return target, nil
}

func (s *localSession) Record(_ context.Context, record m.TestRecord) error {
	return s.records.Append(record)
}

func (s *localSession) WriteManifest(ctx context.Context, manifest m.SessionManifest) error {
	content, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	path := s.fs.JoinPath(ctx, string(s.diffDir), manifestFileName)
	if err := s.fs.WriteFile(ctx, path, content, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

func (s *localSession) Close(_ context.Context) error {
	return errors.Join(s.records.Close(), s.log.Close())
}
