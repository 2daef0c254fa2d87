// Package scanner adapts an external content-inspection engine (ClamAV's
// clamscan) into structured verdicts.
package scanner

import (
	"errors"
	"fmt"
)

// Status is the classified outcome of one scan attempt.
type Status string

const (
	StatusClean    Status = "clean"
	StatusInfected Status = "infected"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the three verdict states.
func (s Status) Valid() bool {
	switch s {
	case StatusClean, StatusInfected, StatusError:
		return true
	}
	return false
}

// FallbackVersion marks verdicts issued without a real engine run.
// Consumers must treat such a verdict as "unscanned".
const FallbackVersion = "fallback"

// FallbackLog is the scan log attached to every fallback verdict.
const FallbackLog = "engine unavailable, fallback verdict issued"

// ErrEngineUnavailable is returned when the engine binary cannot be reached.
var ErrEngineUnavailable = errors.New("scan engine unavailable")

// Verdict is the structured result of a scan.
type Verdict struct {
	Status    Status
	VirusName string // set only when Status is StatusInfected
	Log       string // raw engine output, stored in full
	Version   string
}

// IsFallback reports whether the verdict came from the fallback path.
func (v Verdict) IsFallback() bool { return v.Version == FallbackVersion }

// Check enforces the VirusName <=> infected invariant.
func (v Verdict) Check() error {
	if !v.Status.Valid() {
		return fmt.Errorf("verdict: invalid status %q", v.Status)
	}
	if (v.Status == StatusInfected) != (v.VirusName != "") {
		return fmt.Errorf("verdict: virus name %q inconsistent with status %q", v.VirusName, v.Status)
	}
	return nil
}

// FallbackVerdict is the deterministic verdict issued when no engine is reachable.
func FallbackVerdict() Verdict {
	return Verdict{Status: StatusClean, Log: FallbackLog, Version: FallbackVersion}
}

// ErrorVerdict wraps an engine-level fault into an inconclusive verdict.
func ErrorVerdict(version string, err error) Verdict {
	return Verdict{Status: StatusError, Log: err.Error(), Version: version}
}
