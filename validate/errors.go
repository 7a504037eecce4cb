package validate

import (
	"sort"
	"strings"
)

// Issue codes.
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeFormat   = "format"
	CodeTag      = "tag"
	CodeMinItems = "min_items"
	CodeUnknown  = "unknown"
	CodeCheck    = "check"
)

// Issue is a single failing path.
type Issue struct {
	// Path is the dotted path of the failing value ("addresses[0].zip").
	// It is empty for object-level failures of the root.
	Path    string
	Code    string
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + " " + i.Message
}

// Error is the structured, multi-field validation error returned by an Engine.
type Error struct {
	Issues []Issue
}

func newError(issues []Issue) *Error {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return &Error{Issues: issues}
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// Fields returns the distinct failing paths in order.
func (e *Error) Fields() []string {
	seen := make(map[string]bool, len(e.Issues))
	var out []string
	for _, issue := range e.Issues {
		if !seen[issue.Path] {
			seen[issue.Path] = true
			out = append(out, issue.Path)
		}
	}
	return out
}

// Has reports whether path failed, optionally with the given code.
func (e *Error) Has(path string, code ...string) bool {
	for _, issue := range e.Issues {
		if issue.Path != path {
			continue
		}
		if len(code) == 0 || issue.Code == code[0] {
			return true
		}
	}
	return false
}
