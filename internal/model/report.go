package model

import "time"

// TestRecord is the journal entry written for every finished test. Together with
// the session manifest and the corpus it is enough to regenerate the candidate.
type TestRecord struct {
	Number        int
	Stamp         string
	SeedPath      Path
	SeedHash      string
	RandSeed      uint64
	Extension     string
	SizeDelta     int
	BytesChanged  int
	CandidateName string
	Verdict       Verdict
	Reason        string
	ExitCode      int
	Artifact      Path   // diff file or archived crash; empty when storing failed
	StoreError    string // set when the artifact could not be stored
}

// SessionSummary counts verdicts for one session.
type SessionSummary struct {
	Total   int `yaml:"total"`
	Passed  int `yaml:"passed"`
	Crashed int `yaml:"crashed"`
	Errors  int `yaml:"errors"`
}

// Add accounts for a finished test.
func (s *SessionSummary) Add(record TestRecord) {
	s.Total++

	switch record.Verdict {
	case Passed:
		s.Passed++
	case Crashed:
		s.Crashed++
	}

	if record.StoreError != "" {
		s.Errors++
	}
}

// SessionManifest describes a session; it is written next to the diff artifacts.
type SessionManifest struct {
	ID        string         `yaml:"id"`
	Stamp     string         `yaml:"stamp"`
	Started   time.Time      `yaml:"started"`
	Finished  time.Time      `yaml:"finished,omitempty"`
	RandSeed  uint64         `yaml:"rand_seed"`
	Tests     int            `yaml:"tests"`
	Corpus    Path           `yaml:"corpus"`
	Seeds     int            `yaml:"seeds"`
	Target    ExecConfig     `yaml:"target"`
	Mutation  MutationConfig `yaml:"mutation"`
	Summary   SessionSummary `yaml:"summary"`
	Completed bool           `yaml:"completed"`
}
