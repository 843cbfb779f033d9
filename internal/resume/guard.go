package resume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rgonek/confluence-space-export/internal/journal"
	"github.com/rgonek/confluence-space-export/internal/queue"
)

// State classifies the prior-run markers found in an output directory.
type State string

const (
	// StateFresh means no prior run left any marker.
	StateFresh State = "fresh"
	// StateInterrupted means a prior run started and did not cleanly exit.
	StateInterrupted State = "interrupted"
	// StateCompletedPrior means a prior run finished successfully.
	StateCompletedPrior State = "completed-prior"
	// StateCompletedStale means both sentinels exist: the prior run wrote the
	// completion marker but never cleaned up. Only a fresh start is safe.
	StateCompletedStale State = "completed-stale"
)

// Mode is the start mode the guard settles on.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeResume Mode = "resume"
	ModeFresh  Mode = "fresh"
)

// GuardConfig carries the flags relevant to resume validation.
type GuardConfig struct {
	OutputDir string
	SpaceKey  string
	Resume    bool
	Fresh     bool
}

// Decision is the outcome of resume validation.
type Decision struct {
	Valid       bool
	Mode        Mode
	State       State
	ShouldAbort bool
	Message     string
}

// Classify inspects the sentinels in outputDir and names the prior state.
func Classify(outputDir string) (State, InProgressSentinel, error) {
	inProgress, hasInProgress, err := ReadInProgress(outputDir)
	if err != nil {
		return "", InProgressSentinel{}, fmt.Errorf("read in-progress sentinel: %w", err)
	}
	_, hasCompleted, err := ReadCompleted(outputDir)
	if err != nil {
		return "", InProgressSentinel{}, fmt.Errorf("read completed sentinel: %w", err)
	}

	switch {
	case hasInProgress && hasCompleted:
		return StateCompletedStale, inProgress, nil
	case hasInProgress:
		return StateInterrupted, inProgress, nil
	case hasCompleted:
		return StateCompletedPrior, InProgressSentinel{}, nil
	default:
		return StateFresh, InProgressSentinel{}, nil
	}
}

// Validate decides whether and how an export may start. Ambiguous prior state
// with neither --resume nor --fresh aborts with an explanatory message.
func Validate(cfg GuardConfig) (Decision, error) {
	if cfg.Resume && cfg.Fresh {
		return Decision{
			State:       StateFresh,
			ShouldAbort: true,
			Message:     "--resume and --fresh are mutually exclusive",
		}, nil
	}

	state, inProgress, err := Classify(cfg.OutputDir)
	if err != nil {
		return Decision{}, err
	}

	switch state {
	case StateFresh:
		if cfg.Resume {
			return Decision{
				State:       state,
				ShouldAbort: true,
				Message:     "nothing to resume: no prior export state in " + cfg.OutputDir,
			}, nil
		}
		mode := ModeNormal
		if cfg.Fresh {
			mode = ModeFresh
		}
		return Decision{Valid: true, Mode: mode, State: state}, nil

	case StateInterrupted:
		switch {
		case cfg.Resume:
			return Decision{Valid: true, Mode: ModeResume, State: state}, nil
		case cfg.Fresh:
			return Decision{Valid: true, Mode: ModeFresh, State: state}, nil
		default:
			return Decision{
				State:       state,
				ShouldAbort: true,
				Message:     interruptedMessage(inProgress),
			}, nil
		}

	case StateCompletedPrior:
		switch {
		case cfg.Resume:
			// Resuming a completed export is a no-op run; allowed so repeated
			// --resume invocations stay idempotent.
			return Decision{Valid: true, Mode: ModeResume, State: state}, nil
		case cfg.Fresh:
			return Decision{Valid: true, Mode: ModeFresh, State: state}, nil
		default:
			return Decision{
				State:       state,
				ShouldAbort: true,
				Message:     "previous export completed; re-run with --fresh to export again or --resume to verify",
			}, nil
		}

	case StateCompletedStale:
		if cfg.Fresh {
			return Decision{Valid: true, Mode: ModeFresh, State: state}, nil
		}
		return Decision{
			State:       state,
			ShouldAbort: true,
			Message:     "previous export completed but left an in-progress sentinel; only --fresh is valid",
		}, nil
	}

	return Decision{}, fmt.Errorf("unknown resume state %q", state)
}

// ClearPriorState removes sentinels, journal, and queue snapshots so a fresh
// export starts from nothing.
func ClearPriorState(outputDir string) error {
	if err := RemoveInProgress(outputDir); err != nil {
		return err
	}
	if err := RemoveCompleted(outputDir); err != nil {
		return err
	}
	if err := removeIfExists(filepath.Join(outputDir, journal.FileName)); err != nil {
		return err
	}
	if err := removeIfExists(filepath.Join(outputDir, queue.SnapshotFileName)); err != nil {
		return err
	}
	return queue.RemoveBackups(outputDir)
}

func interruptedMessage(sentinel InProgressSentinel) string {
	reason := "a previous export was interrupted"
	if sentinel.Signal != "" {
		reason = fmt.Sprintf("a previous export was interrupted by signal %q", sentinel.Signal)
	}
	if !sentinel.Timestamp.IsZero() {
		reason += " at " + sentinel.Timestamp.Format("2006-01-02 15:04:05 MST")
	}
	return reason + "; re-run with --resume to continue or --fresh to start over"
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
