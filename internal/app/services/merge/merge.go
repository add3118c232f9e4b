// Package merge reconciles generated output with the existing project file
// set. The merge never drops a path present in the existing set.
package merge

import "github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"

// Files merges the backend's returned files into the existing set.
//
// Existing paths keep their original relative order and take the returned
// version when one exists. Paths new in returned are appended afterwards in
// the order they appear there. Duplicate paths within returned resolve to the
// last occurrence.
func Files(existing, returned []project.File) []project.File {
	byPath := make(map[string]project.File, len(returned))
	for _, f := range returned {
		byPath[f.Path] = f
	}

	known := make(map[string]struct{}, len(existing))
	merged := make([]project.File, 0, len(existing)+len(returned))
	for _, f := range existing {
		if _, dup := known[f.Path]; dup {
			continue
		}
		known[f.Path] = struct{}{}
		if updated, ok := byPath[f.Path]; ok {
			merged = append(merged, updated)
		} else {
			merged = append(merged, f)
		}
	}

	for _, f := range returned {
		if _, ok := known[f.Path]; ok {
			continue
		}
		known[f.Path] = struct{}{}
		// Last occurrence wins for duplicates within returned.
		merged = append(merged, byPath[f.Path])
	}
	return merged
}

// Dependencies merges returned dependency versions over the existing map.
// Existing names are never dropped; returned versions win.
func Dependencies(existing, returned map[string]string) map[string]string {
	if existing == nil && returned == nil {
		return nil
	}
	merged := make(map[string]string, len(existing)+len(returned))
	for name, version := range existing {
		merged[name] = version
	}
	for name, version := range returned {
		merged[name] = version
	}
	return merged
}
