package model

import "strings"

// SelectionType controls how a FolderSelection filters records.
type SelectionType string

const (
	// SelectionAll keeps every folder.
	SelectionAll SelectionType = "all"
	// SelectionInclude keeps only the listed folders.
	SelectionInclude SelectionType = "include"
)

// FolderSelection is a user-chosen folder filter. It is normalized and
// intersected against the currently-available folder paths on each recompute.
type FolderSelection struct {
	Type         SelectionType
	IncludePaths []string

	keys map[string]struct{}
}

// Normalize rebuilds the lowercase matching keys, keeping only include paths
// that still exist among the available folder paths.
func (s *FolderSelection) Normalize(available []string) {
	s.keys = make(map[string]struct{}, len(s.IncludePaths))
	if s.Type != SelectionInclude {
		return
	}
	avail := make(map[string]struct{}, len(available))
	for _, a := range available {
		avail[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	for _, p := range s.IncludePaths {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" {
			continue
		}
		if _, ok := avail[key]; ok {
			s.keys[key] = struct{}{}
		}
	}
}

// Matches reports whether a record's display path passes the filter.
// An un-normalized include selection matches nothing.
func (s *FolderSelection) Matches(displayPath string) bool {
	if s.Type != SelectionInclude {
		return true
	}
	_, ok := s.keys[strings.ToLower(strings.TrimSpace(displayPath))]
	return ok
}
