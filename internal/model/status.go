package model

import "fmt"

// JobKind separates the two independent job families.
type JobKind string

const (
	KindApply  JobKind = "apply"
	KindRemove JobKind = "remove"
)

type ApplyStatus string

const (
	ApplyQueued      ApplyStatus = "queued"
	ApplyDownloading ApplyStatus = "downloading"
	ApplyExtracting  ApplyStatus = "extracting"
	ApplyDone        ApplyStatus = "done"
	ApplyFailed      ApplyStatus = "failed"
	ApplyCancelled   ApplyStatus = "cancelled"
)

type RemoveStatus string

const (
	RemoveQueued   RemoveStatus = "queued"
	RemoveRemoving RemoveStatus = "removing"
	RemoveDone     RemoveStatus = "done"
	RemoveFailed   RemoveStatus = "failed"
)

// Status is the closed set of status enums a JobStatus can carry.
type Status interface {
	ApplyStatus | RemoveStatus
}

var applyTransitions = map[ApplyStatus]map[ApplyStatus]bool{
	"": {
		ApplyQueued: true,
	},
	ApplyQueued: {
		ApplyQueued:      true,
		ApplyDownloading: true,
		ApplyFailed:      true,
		ApplyCancelled:   true,
	},
	ApplyDownloading: {
		ApplyDownloading: true,
		ApplyExtracting:  true,
		ApplyFailed:      true,
		ApplyCancelled:   true,
	},
	ApplyExtracting: {
		ApplyExtracting: true,
		ApplyDone:       true,
		ApplyFailed:     true,
		ApplyCancelled:  true,
	},
	ApplyDone: {
		ApplyQueued: true,
	},
	ApplyFailed: {
		ApplyQueued: true,
	},
	ApplyCancelled: {
		ApplyQueued:    true,
		ApplyCancelled: true,
	},
}

var removeTransitions = map[RemoveStatus]map[RemoveStatus]bool{
	"": {
		RemoveQueued: true,
	},
	RemoveQueued: {
		RemoveQueued:   true,
		RemoveRemoving: true,
		RemoveFailed:   true,
	},
	RemoveRemoving: {
		RemoveRemoving: true,
		RemoveDone:     true,
		RemoveFailed:   true,
	},
	RemoveDone: {
		RemoveQueued: true,
	},
	RemoveFailed: {
		RemoveQueued: true,
	},
}

func (s ApplyStatus) Terminal() bool {
	return s == ApplyDone || s == ApplyFailed || s == ApplyCancelled
}

func (s RemoveStatus) Terminal() bool {
	return s == RemoveDone || s == RemoveFailed
}

func IsKnownApplyStatus(status ApplyStatus) bool {
	_, ok := applyTransitions[status]
	return ok
}

func IsKnownRemoveStatus(status RemoveStatus) bool {
	_, ok := removeTransitions[status]
	return ok
}

func CanTransitionApply(from, to ApplyStatus) bool {
	next, ok := applyTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func CanTransitionRemove(from, to RemoveStatus) bool {
	next, ok := removeTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// CanTransition dispatches to the table matching the status type.
func CanTransition[S Status](from, to S) bool {
	switch f := any(from).(type) {
	case ApplyStatus:
		return CanTransitionApply(f, any(to).(ApplyStatus))
	case RemoveStatus:
		return CanTransitionRemove(f, any(to).(RemoveStatus))
	}
	return false
}

// IsTerminal reports whether status ends a job of its kind.
func IsTerminal[S Status](status S) bool {
	switch s := any(status).(type) {
	case ApplyStatus:
		return s.Terminal()
	case RemoveStatus:
		return s.Terminal()
	}
	return false
}

func TransitionError[S Status](appID int64, from, to S) error {
	return fmt.Errorf("invalid job status transition: %q -> %q (app_id=%d)", from, to, appID)
}
