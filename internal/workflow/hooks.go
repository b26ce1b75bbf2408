package workflow

import "time"

// Phase identifies which side of the transfer a hook runs on.
type Phase string

const (
	// PhasePre marks hooks that run before the transfer step.
	PhasePre Phase = "pre"
	// PhasePost marks hooks that run after the transfer step.
	PhasePost Phase = "post"
)

// Hook levels used by the built-in backup types. Lower levels run
// earlier within a phase. Job-defined hooks default to LevelDefault,
// below every built-in level: a job's quiesce command runs before its
// snapshot is cut, and its restart command runs before the housekeeping
// post hooks.
const (
	// LevelDefault is where job-defined hooks run.
	LevelDefault = 10
	// LevelSnapshotCreate orders snapshot creation among pre hooks.
	LevelSnapshotCreate = 20
	// LevelStoreRetention orders backup store expiration among post hooks.
	LevelStoreRetention = 30
	// LevelSnapshotTeardown orders snapshot cleanup among post hooks.
	LevelSnapshotTeardown = 40
	// LevelDatasetSnapshot orders destination dataset snapshots among
	// post hooks.
	LevelDatasetSnapshot = 60
	// LevelDatasetRetention orders destination snapshot expiration among
	// post hooks.
	LevelDatasetRetention = 70
)

// PreHookFunc is the signature of a pre hook. A non-nil error aborts the
// run before the transfer step.
type PreHookFunc func() error

// PostHookFunc is the signature of a post hook. errorCase is true when a
// pre hook or the transfer already failed; hooks that only make sense
// after a successful transfer (snapshot retention, report upload) should
// return nil without acting in that case, while cleanup hooks ignore it.
type PostHookFunc func(errorCase bool) error

// preHook is a registered pre hook with its ordering level.
type preHook struct {
	level       int
	description string
	fn          PreHookFunc
}

// postHook is a registered post hook with its ordering level.
type postHook struct {
	level       int
	description string
	fn          PostHookFunc
}

// FilterKind distinguishes include from exclude path filters.
type FilterKind string

const (
	// FilterInclude marks a path selected into the backup set.
	FilterInclude FilterKind = "include"
	// FilterExclude marks a path removed from the backup set.
	FilterExclude FilterKind = "exclude"
)

// PathFilter is one include or exclude entry. Filters are kept in a
// single ordered list because transfer tools like rdiff-backup give
// earlier filters precedence over later ones, so the relative order of
// includes and excludes is significant.
type PathFilter struct {
	Kind FilterKind
	Path string
}

// HookOutcome records how one hook execution went, for run reporting.
type HookOutcome struct {
	Phase       Phase         `json:"phase"`
	Level       int           `json:"level"`
	Description string        `json:"description"`
	Duration    time.Duration `json:"duration_ns"`
	Err         error         `json:"-"`
	ErrMessage  string        `json:"error,omitempty"`
}

// TransferOutcome records whether the transfer step ran and how it went.
type TransferOutcome struct {
	Ran        bool          `json:"ran"`
	Duration   time.Duration `json:"duration_ns"`
	Err        error         `json:"-"`
	ErrMessage string        `json:"error,omitempty"`
}

// StateTransition records one state machine edge of a run.
type StateTransition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
