package model

import "time"

// JobStatus is the pollable record of one job. Optional fields stay nil until
// a phase sets them so readers can tell "unset" from a zero value.
type JobStatus[S Status] struct {
	Status       S         `json:"status,omitempty"`
	BytesRead    int64     `json:"bytesRead"`
	TotalBytes   int64     `json:"totalBytes"`
	Error        *string   `json:"error,omitempty"`
	Success      *bool     `json:"success,omitempty"`
	Progress     *string   `json:"progress,omitempty"`
	FilesRemoved *int      `json:"filesRemoved,omitempty"`
	JobID        string    `json:"jobId,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

type (
	ApplyJob  = JobStatus[ApplyStatus]
	RemoveJob = JobStatus[RemoveStatus]
)

// Patch is a partial update. Nil fields leave the record untouched. An Error
// pointing at the empty string clears the error.
type Patch[S Status] struct {
	Status       *S
	BytesRead    *int64
	TotalBytes   *int64
	Error        *string
	Success      *bool
	Progress     *string
	FilesRemoved *int
	JobID        *string
}

type (
	ApplyPatch  = Patch[ApplyStatus]
	RemovePatch = Patch[RemoveStatus]
)

// Merge returns a copy of s with every non-nil field of p applied.
func (s JobStatus[S]) Merge(p Patch[S]) JobStatus[S] {
	out := s.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.BytesRead != nil {
		out.BytesRead = *p.BytesRead
	}
	if p.TotalBytes != nil {
		out.TotalBytes = *p.TotalBytes
	}
	if p.Error != nil {
		if *p.Error == "" {
			out.Error = nil
		} else {
			out.Error = Ptr(*p.Error)
		}
	}
	if p.Success != nil {
		out.Success = Ptr(*p.Success)
	}
	if p.Progress != nil {
		out.Progress = Ptr(*p.Progress)
	}
	if p.FilesRemoved != nil {
		out.FilesRemoved = Ptr(*p.FilesRemoved)
	}
	if p.JobID != nil {
		out.JobID = *p.JobID
	}
	return out
}

// Clone deep-copies the optional fields so callers never share pointers with
// the store.
func (s JobStatus[S]) Clone() JobStatus[S] {
	out := s
	if s.Error != nil {
		out.Error = Ptr(*s.Error)
	}
	if s.Success != nil {
		out.Success = Ptr(*s.Success)
	}
	if s.Progress != nil {
		out.Progress = Ptr(*s.Progress)
	}
	if s.FilesRemoved != nil {
		out.FilesRemoved = Ptr(*s.FilesRemoved)
	}
	return out
}

func (s JobStatus[S]) IsZero() bool {
	return s.Status == "" && s.JobID == ""
}

func (s JobStatus[S]) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

func Ptr[T any](v T) *T {
	return &v
}
