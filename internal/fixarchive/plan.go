// Package fixarchive decides how a fix archive maps onto an install
// directory and performs the extraction.
package fixarchive

import (
	"strconv"
	"strings"
)

// Item is one file to write: Source is the archive entry name, Target the
// forward-slash path relative to the install directory.
type Item struct {
	Source string
	Target string
}

type Plan struct {
	// Wrapped is set when every entry lives under a single folder named after
	// the application id. That folder is stripped from targets.
	Wrapped bool
	Items   []Item
}

// NormalizeName converts an archive entry name to forward slashes.
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func IsDirEntry(name string) bool {
	return strings.HasSuffix(NormalizeName(name), "/")
}

// TopLevel returns the distinct first path segments of names.
func TopLevel(names []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range names {
		first, _, _ := strings.Cut(NormalizeName(name), "/")
		if first != "" {
			out[first] = struct{}{}
		}
	}
	return out
}

// PlanEntries builds the extraction plan for an archive whose entries are
// names. Directory entries never produce items.
func PlanEntries(names []string, appID int64) Plan {
	wrapper := strconv.FormatInt(appID, 10)
	top := TopLevel(names)
	_, hasWrapper := top[wrapper]
	wrapped := len(top) == 1 && hasWrapper

	plan := Plan{Wrapped: wrapped}
	prefix := wrapper + "/"
	for _, raw := range names {
		name := NormalizeName(raw)
		if IsDirEntry(name) {
			continue
		}
		target := name
		if wrapped {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			target = strings.TrimPrefix(name, prefix)
			if target == "" {
				continue
			}
		}
		plan.Items = append(plan.Items, Item{Source: raw, Target: target})
	}
	return plan
}

// Targets lists the relative target paths of the plan in order.
func (p Plan) Targets() []string {
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, it.Target)
	}
	return out
}
