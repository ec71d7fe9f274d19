package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fortio.org/safecast"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shaker.dev/pkg/shaker/internal/adapter"
	"shaker.dev/pkg/shaker/internal/controller"
	m "shaker.dev/pkg/shaker/internal/model"
)

// ErrCorpusDrift is returned by Replay when the corpus no longer matches the
// one the session ran against.
var ErrCorpusDrift = errors.New("corpus changed since the session ran")

// RunArgs contains the arguments for a fuzzing session.
type RunArgs struct {
	Corpus   m.Path
	Tests    int
	Parallel int
	// Seed drives every random choice of the session; zero derives one from the clock.
	Seed     uint64
	Mutation m.MutationConfig
	Exec     m.ExecConfig
	WorkDir  m.Path
}

// ReplayArgs identifies a stored test to regenerate.
type ReplayArgs struct {
	Session m.Path
	Test    int
	Corpus  m.Path // empty uses the corpus recorded in the manifest
	Output  m.Path // empty uses the original candidate name
}

// PatchArgs contains the arguments for re-applying a diff artifact.
type PatchArgs struct {
	Seed    m.Path
	Diff    m.Path
	Output  m.Path
	HexDiff bool
}

// Workflow defines the operations exposed to the command line.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) error
	Replay(ctx context.Context, args ReplayArgs) error
	Patch(ctx context.Context, args PatchArgs) error
}

// Option customizes a Workflow.
type Option func(*workflow)

// WithClock replaces the wall clock used for session and test timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *workflow) {
		w.now = now
	}
}

type workflow struct {
	fsAdapter adapter.FSAdapter
	runner    adapter.TargetRunnerAdapter
	store     adapter.ArtifactStore
	differ    adapter.BinaryDiffAdapter
	ui        controller.UI
	now       func() time.Time
}

// NewWorkflow creates a Workflow over the given adapters.
func NewWorkflow(
	fsAdapter adapter.FSAdapter,
	runner adapter.TargetRunnerAdapter,
	store adapter.ArtifactStore,
	differ adapter.BinaryDiffAdapter,
	ui controller.UI,
	options ...Option,
) Workflow {
	w := &workflow{
		fsAdapter: fsAdapter,
		runner:    runner,
		store:     store,
		differ:    differ,
		ui:        ui,
		now:       time.Now,
	}

	for _, option := range options {
		option(w)
	}

	return w
}

// Timestamp renders t in UTC as 20060102_150405_000_GMT, milliseconds
// truncated.
func Timestamp(t time.Time) string {
	t = t.UTC()

	return t.Format("20060102_150405") + fmt.Sprintf("_%03d_GMT", t.Nanosecond()/int(time.Millisecond))
}

// drawCandidate is the single place a test's random stream is consumed: the
// seed pick first, then the mutation. Run and Replay both go through it.
func drawCandidate(mutator Mutator, corpus m.Corpus, sessionSeed uint64, number int) (m.MutatedCandidate, error) {
	stream, err := safecast.Conv[uint64](number)
	if err != nil {
		return m.MutatedCandidate{}, fmt.Errorf("test number %d: %w", number, err)
	}

	rng := rand.New(rand.NewPCG(sessionSeed, stream))
	seed := &corpus.Seeds[rng.IntN(len(corpus.Seeds))]

	return mutator.Mutate(seed, corpus.Extensions, rng)
}

func (w *workflow) sessionSeed(args RunArgs, started time.Time) uint64 {
	if args.Seed != 0 {
		return args.Seed
	}

	seed, err := safecast.Conv[uint64](started.UnixNano())
	if err != nil || seed == 0 {
		return 1
	}

	return seed
}

// Run executes a fixed number of tests against the target. Configuration
// problems, an empty corpus and a target that cannot be spawned abort the
// session; artifact storage failures are reported once every test finished.
func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	if args.Tests < 1 {
		return &m.ConfigError{Field: "run.tests", Reason: "at least one test is required"}
	}

	mutator, err := NewMutator(args.Mutation)
	if err != nil {
		return err
	}

	oracle, err := NewOracle(w.fsAdapter, w.runner, args.Exec, args.WorkDir)
	if err != nil {
		return err
	}

	corpus, err := LoadCorpus(ctx, w.fsAdapter, args.Corpus)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.ui.Start(ctx, controller.WithSessionMode(args.Tests), controller.WithInterrupt(cancel)); err != nil {
		return fmt.Errorf("start UI: %w", err)
	}
	defer w.ui.Close(ctx)

	started := w.now().UTC()
	stamp := Timestamp(started)

	session, err := w.store.OpenSession(ctx, stamp, w.ui.LogWriter())
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	run := &sessionRun{
		workflow: w,
		session:  session,
		mutator:  mutator,
		oracle:   oracle,
		corpus:   corpus,
		args:     args,
		stamp:    stamp,
		seed:     w.sessionSeed(args, started),
	}

	manifest := m.SessionManifest{
		ID:       uuid.NewString(),
		Stamp:    stamp,
		Started:  started,
		RandSeed: run.seed,
		Tests:    args.Tests,
		Corpus:   args.Corpus,
		Seeds:    len(corpus.Seeds),
		Target:   args.Exec,
		Mutation: args.Mutation,
	}

	if err := session.WriteManifest(ctx, manifest); err != nil {
		slog.ErrorContext(ctx, "Failed to write session manifest", "stamp", stamp, "error", err)
		run.storeFailed(err)
	}

	run.banner(ctx, manifest)

	runErr := run.tests(ctx)

	run.closingBanner(ctx, runErr)

	manifest.Finished = w.now().UTC()
	manifest.Summary = run.summary
	manifest.Completed = runErr == nil && run.summary.Total == args.Tests

	if err := session.WriteManifest(ctx, manifest); err != nil {
		slog.ErrorContext(ctx, "Failed to write session manifest", "stamp", stamp, "error", err)
		run.storeFailed(err)
	}

	if err := session.Close(ctx); err != nil {
		run.storeFailed(fmt.Errorf("close session: %w", err))
	}

	w.ui.DisplaySummary(ctx, run.summary)

	return errors.Join(append([]error{runErr}, run.storeErrs...)...)
}

// sessionRun is the mutable state of one Run call.
type sessionRun struct {
	*workflow

	session adapter.Session
	mutator Mutator
	oracle  Oracle
	corpus  m.Corpus
	args    RunArgs
	stamp   string
	seed    uint64

	mu        sync.Mutex
	summary   m.SessionSummary
	storeErrs []error
}

func (r *sessionRun) storeFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.storeErrs = append(r.storeErrs, err)
}

// log appends a line to the session log. The log is an artifact like any
// other, so a failed append is only reported through slog.
func (r *sessionRun) log(ctx context.Context, format string, a ...any) {
	line := fmt.Sprintf(format, a...)
	if err := r.session.Log(ctx, line); err != nil {
		slog.ErrorContext(ctx, "Failed to append to session log", "error", err)
	}
}

// testLog prefixes lines with the test number when tests interleave.
func (r *sessionRun) testLog(ctx context.Context, number int) func(format string, a ...any) {
	prefix := ""
	if r.args.Parallel > 1 {
		prefix = fmt.Sprintf("#%04d ", number)
	}

	return func(format string, a ...any) {
		r.log(ctx, prefix+format, a...)
	}
}

func (r *sessionRun) banner(ctx context.Context, manifest m.SessionManifest) {
	cfg := r.args.Mutation

	r.log(ctx, "***")
	r.log(ctx, "*** %s: Starting fuzzer!", r.stamp)
	r.log(ctx, "*** There are %d tests to be done", r.args.Tests)
	r.log(ctx, "*** Session %s, random seed %d", manifest.ID, r.seed)
	r.log(ctx, "*** Target: %s", strings.Join(append([]string{r.args.Exec.Command}, r.args.Exec.Args...), " "))
	r.log(ctx, "*** Corpus: %s (%d seed%s)", r.args.Corpus, len(r.corpus.Seeds), plural(len(r.corpus.Seeds)))
	r.log(ctx, "*** Extensions: %s", extensionList(r.corpus.Extensions))
	r.log(ctx, "***")
	r.log(ctx, "*** -- Fuzzer configuration --")
	r.log(ctx, "*** Same extension probability = %.2f %%", cfg.SameExtProbability*100)
	r.log(ctx, "*** Minimum change = %d byte%s", cfg.MinBytesChanged, plural(cfg.MinBytesChanged))
	r.log(ctx, "*** Maximum change = %d byte%s", cfg.MaxBytesChanged, plural(cfg.MaxBytesChanged))
	r.log(ctx, "*** Maximum relative change = %.2f %%", cfg.MaxRelativeChange*100)
	r.log(ctx, "*** Size change probability = %.2f %%", cfg.SizeChangeProbability*100)
	r.log(ctx, "*** Size grows in %.2f %% of such changes", cfg.BiggerSizeProbability*100)
	r.log(ctx, "*** Minimum size change = %d byte%s (if changing)", cfg.MinSizeChange, plural(cfg.MinSizeChange))
	r.log(ctx, "*** Maximum size change = %d byte%s", cfg.MaxSizeChange, plural(cfg.MaxSizeChange))
	r.log(ctx, "*** Subprocess duration = %s", r.args.Exec.Budget)
	r.log(ctx, "*** Workers = %d", max(r.args.Parallel, 1))
	r.log(ctx, "***")
}

func extensionList(set m.ExtensionSet) string {
	names := set.Members()
	for i, ext := range names {
		if ext == "" {
			names[i] = "(none)"
		}
	}

	return strings.Join(names, " ")
}

func (r *sessionRun) closingBanner(ctx context.Context, runErr error) {
	r.log(ctx, "***")

	if runErr != nil {
		r.log(ctx, "*** Stopped after %d of %d tests: %v", r.summary.Total, r.args.Tests, runErr)
	} else {
		r.log(ctx, "*** All tests are done, job completed")
	}

	r.log(ctx, "*** %d passed, %d crashed, %d not stored", r.summary.Passed, r.summary.Crashed, r.summary.Errors)
	r.log(ctx, "***")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}

	return "s"
}

// tests runs the iterations on a bounded worker pool. A fatal error or an
// interrupt stops scheduling; tests already running finish.
func (r *sessionRun) tests(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(r.args.Parallel, 1))

	for number := 1; number <= r.args.Tests; number++ {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}

			return r.test(groupCtx, number)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session interrupted: %w", err)
	}

	return nil
}

func (r *sessionRun) test(ctx context.Context, number int) error {
	logf := r.testLog(ctx, number)
	testStamp := Timestamp(r.now())

	logf("%s: Test #%d started", testStamp, number)

	candidate, err := drawCandidate(r.mutator, r.corpus, r.seed, number)
	if err != nil {
		return fmt.Errorf("mutate test #%d: %w", number, err)
	}

	seed := candidate.Seed
	logf("Chosen input file: %s", seed.Path)
	logf("Input file size: %d bytes", len(seed.Content))

	switch {
	case !candidate.ExtensionChanged:
		logf("Keeping extension in changed output")
	case candidate.Extension == "":
		logf("Output extension changed to none (i.e., no extension)")
	default:
		logf("Output extension changed to %s", candidate.Extension)
	}

	switch {
	case candidate.SizeDelta > 0:
		logf("Inserting %d bytes to file", candidate.SizeDelta)
	case candidate.SizeDelta < 0:
		logf("Removing %d bytes from file", -candidate.SizeDelta)
	default:
		logf("Keeping the file size in changed output")
	}

	logf("Changing %d bytes", candidate.BytesChanged)

	outcome, err := r.oracle.Run(ctx, candidate, number, r.stamp)
	if err != nil {
		logf("Test aborted: %v", err)
		return fmt.Errorf("test #%d: %w", number, err)
	}

	record := m.TestRecord{
		Number:        number,
		Stamp:         testStamp,
		SeedPath:      seed.Path,
		SeedHash:      seed.Hash,
		RandSeed:      r.seed,
		Extension:     candidate.Extension,
		SizeDelta:     candidate.SizeDelta,
		BytesChanged:  candidate.BytesChanged,
		CandidateName: filepath.Base(string(outcome.CandidatePath)),
		Verdict:       outcome.Verdict,
		Reason:        outcome.Reason,
		ExitCode:      outcome.Process.ExitCode,
	}

	r.keepArtifact(ctx, logf, seed, outcome, &record)

	if err := r.session.Record(ctx, record); err != nil {
		slog.ErrorContext(ctx, "Failed to journal test", "number", number, "error", err)
	}

	logf("Test finished")
	logf("")

	r.mu.Lock()
	r.summary.Add(record)
	r.mu.Unlock()

	r.ui.DisplayOutcome(ctx, record)

	return nil
}

// keepArtifact keeps the artifact matching the verdict. On failure the candidate is
// left where the oracle wrote it and the error is kept for the session result.
func (r *sessionRun) keepArtifact(ctx context.Context, logf func(string, ...any), seed *m.SeedFile, outcome m.TestOutcome, record *m.TestRecord) {
	var (
		artifact m.Path
		err      error
	)

	switch outcome.Verdict {
	case m.Passed:
		logf("Test ok (%s)", outcome.Reason)
		logf("Creating log patch in %s", r.session.Dir())
		artifact, err = r.session.Passed(ctx, *seed, outcome.CandidatePath)
	default:
		logf("Test failed (%s)", outcome.Reason)
		artifact, err = r.session.Crashed(ctx, outcome.CandidatePath)
		if err == nil {
			logf("Keeping file in %s", filepath.Dir(string(artifact)))
		}
	}

	record.Artifact = artifact

	if err != nil {
		logf("Could not store artifact, candidate left at %s: %v", outcome.CandidatePath, err)
		record.StoreError = err.Error()
		r.storeFailed(fmt.Errorf("test #%d: %w", record.Number, err))
	}
}

// Replay regenerates the candidate of a stored test from the session
// manifest, the journal and the corpus.
func (w *workflow) Replay(ctx context.Context, args ReplayArgs) error {
	manifest, err := w.store.ReadManifest(ctx, args.Session)
	if err != nil {
		return err
	}

	record, err := w.store.ReadRecord(ctx, args.Session, args.Test)
	if err != nil {
		return err
	}

	corpusDir := args.Corpus
	if corpusDir == "" {
		corpusDir = manifest.Corpus
	}

	corpus, err := LoadCorpus(ctx, w.fsAdapter, corpusDir)
	if err != nil {
		return err
	}

	mutator, err := NewMutator(manifest.Mutation)
	if err != nil {
		return err
	}

	candidate, err := drawCandidate(mutator, corpus, record.RandSeed, record.Number)
	if err != nil {
		return err
	}

	if candidate.Seed.Hash != record.SeedHash {
		return fmt.Errorf("%w: test #%d used %s (sha256 %s), corpus now yields %s (sha256 %s)",
			ErrCorpusDrift, record.Number, record.SeedPath, record.SeedHash, candidate.Seed.Path, candidate.Seed.Hash)
	}

	output := args.Output
	if output == "" {
		output = m.Path(record.CandidateName)
	}

	if err := w.fsAdapter.WriteFile(ctx, output, candidate.Content, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	if err := w.ui.Start(ctx, controller.WithToolMode()); err != nil {
		return fmt.Errorf("start UI: %w", err)
	}
	defer w.ui.Close(ctx)

	w.ui.DisplayMessage(ctx, fmt.Sprintf("Regenerated test #%d (%s, %s from %s) into %s",
		record.Number, record.Verdict, record.Reason, candidate.Seed.Path, output))

	return nil
}

// Patch applies a stored diff to its seed, reproducing a passed candidate.
func (w *workflow) Patch(ctx context.Context, args PatchArgs) error {
	seed, err := w.fsAdapter.ReadFile(ctx, args.Seed)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}

	diff, err := w.fsAdapter.ReadFile(ctx, args.Diff)
	if err != nil {
		return fmt.Errorf("read diff: %w", err)
	}

	content, err := w.differ.Patch(seed, diff)
	if err != nil {
		return fmt.Errorf("apply %s to %s: %w", args.Diff, args.Seed, err)
	}

	output := args.Output
	if output == "" {
		base := filepath.Base(string(args.Diff))
		output = m.Path(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	if err := w.fsAdapter.WriteFile(ctx, output, content, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	if err := w.ui.Start(ctx, controller.WithToolMode()); err != nil {
		return fmt.Errorf("start UI: %w", err)
	}
	defer w.ui.Close(ctx)

	w.ui.DisplayMessage(ctx, fmt.Sprintf("Wrote %s (%d bytes)", output, len(content)))

	if args.HexDiff {
		hexDiff, err := HexDiff(string(args.Seed), string(output), seed, content)
		if err != nil {
			return err
		}

		w.ui.DisplayMessage(ctx, hexDiff)
	}

	return nil
}
