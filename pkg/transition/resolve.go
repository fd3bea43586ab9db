// Package transition matches command tokens against the workflow
// transitions an issue currently offers.
package transition

import "strings"

// CommentToken is the command word that only adds a comment.
const CommentToken = "comment"

// Transition is a workflow step offered by the tracker.
type Transition struct {
	Name string
	ID   int
}

// OutcomeKind classifies a resolution.
type OutcomeKind int

const (
	_ OutcomeKind = iota

	NoMatch
	CommentOnly
	Matched
)

func (k OutcomeKind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case CommentOnly:
		return "comment_only"
	case Matched:
		return "matched"
	default:
		return "<INVALID>"
	}
}

// Outcome is the result of Resolve. ID is only set when Kind is Matched.
type Outcome struct {
	Kind OutcomeKind
	ID   int
}

// Resolve picks the transition a token refers to.
//
// A token equal to "comment" (any case) resolves to CommentOnly without
// looking at available. Otherwise the first transition whose name equals the
// token, or starts with the token followed by a space, wins; both comparisons
// ignore case. The order of available is the tie-break and is never changed.
func Resolve(token string, available []Transition) Outcome {
	if strings.EqualFold(token, CommentToken) {
		return Outcome{Kind: CommentOnly}
	}
	lowerToken := strings.ToLower(token)
	prefix := lowerToken + " "
	for _, t := range available {
		name := strings.ToLower(t.Name)
		if name == lowerToken || strings.HasPrefix(name, prefix) {
			return Outcome{Kind: Matched, ID: t.ID}
		}
	}
	return Outcome{Kind: NoMatch}
}
