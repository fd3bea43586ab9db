// Package command extracts issue commands from commit messages.
//
// A command is a single line of the form
//
//	KEY-123 #token free text
//
// where token names a workflow transition (or "comment") and the free text
// becomes the comment body.
package command

import (
	"regexp"
	"strings"
)

// Action is one issue command found in a commit message.
type Action struct {
	// IssueKey is the tracker key, e.g. "JG-1".
	IssueKey string
	// Token is the command word following '#'. It may be "comment".
	Token string
	// Message is the trailing free text. It may be empty.
	Message string
}

var linePattern = regexp.MustCompile(`^(\w+-\d+)\s*#(\S+)\s*(.*?)\s*$`)

// Parse returns the actions found in message, one per matching line, in
// source order. Lines that do not match are skipped.
func Parse(message string) []Action {
	var actions []Action
	Each(message, func(action Action) bool {
		actions = append(actions, action)
		return true
	})
	return actions
}

// Each calls fn for every action in message in source order until fn
// returns false.
func Each(message string, fn func(Action) bool) {
	for _, line := range strings.Split(message, "\n") {
		action, ok := ParseLine(line)
		if !ok {
			continue
		}
		if !fn(action) {
			return
		}
	}
}

// ParseLine matches a single line against the command pattern.
func ParseLine(line string) (Action, bool) {
	match := linePattern.FindStringSubmatch(line)
	if match == nil {
		return Action{}, false
	}
	return Action{
		IssueKey: match[1],
		Token:    match[2],
		Message:  match[3],
	}, true
}

// IsComment reports whether the action only adds a comment.
func (a Action) IsComment() bool {
	return strings.EqualFold(a.Token, "comment")
}
