package model

// MutatedCandidate is a mutated buffer derived from exactly one seed.
type MutatedCandidate struct {
	Seed             *SeedFile
	Content          []byte
	Extension        string
	ExtensionChanged bool
	SizeDelta        int // bytes inserted (positive) or removed (negative)
	BytesChanged     int // value flips applied after the size change
}

// ProcessState is the result of polling the target once its budget elapsed.
type ProcessState int

const (
	// StillAlive means the target was running when the budget elapsed.
	StillAlive ProcessState = iota
	// ExitedCleanly means the target exited with code 0 inside the budget.
	ExitedCleanly
	// ExitedAbnormally means the target exited non-zero or by signal inside the budget.
	ExitedAbnormally
)

func (s ProcessState) String() string {
	switch s {
	case StillAlive:
		return "still alive"
	case ExitedCleanly:
		return "exited cleanly"
	case ExitedAbnormally:
		return "exited abnormally"
	default:
		return "unknown"
	}
}

// ProcessOutcome is what the target runner observed for one launch.
type ProcessOutcome struct {
	State    ProcessState
	ExitCode int   // -1 when killed by a signal or never observed
	StopErr  error // non-nil when a StillAlive target could not be stopped

	// ForcedKill is set when a stopped target outlived the grace period.
	ForcedKill bool
}

// Verdict classifies a single test.
type Verdict int

const (
	// Passed means the target was alive after the budget and stopped cleanly.
	Passed Verdict = iota
	// Crashed means the target exited on its own or its survival could not be confirmed.
	Crashed
)

func (v Verdict) String() string {
	switch v {
	case Passed:
		return "passed"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// TestOutcome is produced exactly once per test iteration.
type TestOutcome struct {
	Verdict       Verdict
	CandidatePath Path
	Reason        string
	Process       ProcessOutcome
}
