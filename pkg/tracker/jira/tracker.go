package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"jirahooks/pkg/tracker"
	"jirahooks/pkg/transition"
)

var _ tracker.Tracker = (*Client)(nil)

type issuePayload struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  *struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

type transitionsPayload struct {
	Transitions []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Fields map[string]struct {
			Name            string `json:"name"`
			Required        bool   `json:"required"`
			HasDefaultValue bool   `json:"hasDefaultValue"`
		} `json:"fields"`
	} `json:"transitions"`
}

// FindIssue fetches an issue by key as identity.
func (c *Client) FindIssue(ctx context.Context, identity tracker.Identity, key string) (tracker.IssueResult, error) {
	var result tracker.IssueResult
	resp, err := c.do(ctx, &identity, http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key)+"?fields=summary,status", nil)
	if err != nil {
		return result, fmt.Errorf("get issue %s: %w", key, err)
	}
	if !resp.ok() {
		result.Add(resp.failure()...)
		return result, nil
	}
	var payload issuePayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return result, fmt.Errorf("parse issue %s: %w", key, err)
	}
	issue := &tracker.Issue{
		ID:      payload.ID,
		Key:     payload.Key,
		Summary: payload.Fields.Summary,
	}
	if payload.Fields.Status != nil {
		issue.Status = payload.Fields.Status.Name
	}
	result.Issue = issue
	return result, nil
}

// ListAvailableTransitions returns the transitions identity may perform on
// issue, in the order Jira lists them.
func (c *Client) ListAvailableTransitions(ctx context.Context, issue tracker.Issue, identity tracker.Identity) ([]transition.Transition, error) {
	payload, errs, err := c.transitions(ctx, identity, issueRef(issue), false)
	if err != nil {
		return nil, err
	}
	if !errs.IsValid() {
		return nil, fmt.Errorf("list transitions %s: %s", issueRef(issue), strings.Join(errs.Messages, "; "))
	}
	out := make([]transition.Transition, 0, len(payload.Transitions))
	for _, t := range payload.Transitions {
		id, err := strconv.Atoi(t.ID)
		if err != nil {
			continue
		}
		out = append(out, transition.Transition{Name: t.Name, ID: id})
	}
	return out, nil
}

// ValidateTransition checks that transitionID is currently offered to
// identity and that it has no required fields without defaults.
func (c *Client) ValidateTransition(ctx context.Context, identity tracker.Identity, issueID string, transitionID int) (tracker.TransitionValidation, error) {
	validation := tracker.TransitionValidation{IssueID: issueID, TransitionID: transitionID}
	payload, errs, err := c.transitions(ctx, identity, issueID, true)
	if err != nil {
		return validation, err
	}
	if !errs.IsValid() {
		validation.Add(errs.Messages...)
		return validation, nil
	}
	want := strconv.Itoa(transitionID)
	for _, t := range payload.Transitions {
		if t.ID != want {
			continue
		}
		fields := make([]string, 0, len(t.Fields))
		for id, field := range t.Fields {
			if field.Required && !field.HasDefaultValue {
				name := field.Name
				if name == "" {
					name = id
				}
				fields = append(fields, name)
			}
		}
		sort.Strings(fields)
		for _, name := range fields {
			validation.Add(fmt.Sprintf("Field '%s' is required for transition '%s'.", name, t.Name))
		}
		return validation, nil
	}
	validation.Add(fmt.Sprintf("Transition %d is not valid for issue %s.", transitionID, issueID))
	return validation, nil
}

// ExecuteTransition performs a validated transition.
func (c *Client) ExecuteTransition(ctx context.Context, identity tracker.Identity, validation tracker.TransitionValidation) (tracker.IssueResult, error) {
	var result tracker.IssueResult
	if !validation.IsValid() {
		result.Add(validation.Messages...)
		return result, nil
	}
	body := map[string]interface{}{
		"transition": map[string]string{"id": strconv.Itoa(validation.TransitionID)},
	}
	resp, err := c.do(ctx, &identity, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(validation.IssueID)+"/transitions", body)
	if err != nil {
		return result, fmt.Errorf("transition issue %s: %w", validation.IssueID, err)
	}
	if !resp.ok() {
		result.Add(resp.failure()...)
		return result, nil
	}
	result.Issue = &tracker.Issue{ID: validation.IssueID}
	return result, nil
}

// NewCommentUpdate builds update parameters that add comment.
func (c *Client) NewCommentUpdate(comment string) tracker.UpdateParams {
	return tracker.UpdateParams{Comment: comment, VisibilityRole: c.visibilityRole}
}

// ValidateUpdate checks the comment body and that identity may comment.
func (c *Client) ValidateUpdate(ctx context.Context, identity tracker.Identity, issueID string, params tracker.UpdateParams) (tracker.UpdateValidation, error) {
	validation := tracker.UpdateValidation{IssueID: issueID, Params: params}
	if strings.TrimSpace(params.Comment) == "" {
		validation.Add("Comment body can not be empty!")
		return validation, nil
	}
	query := url.Values{"issueId": {issueID}, "permissions": {"ADD_COMMENTS"}}
	resp, err := c.do(ctx, &identity, http.MethodGet, "/rest/api/2/mypermissions?"+query.Encode(), nil)
	if err != nil {
		return validation, fmt.Errorf("check permissions %s: %w", issueID, err)
	}
	if !resp.ok() {
		validation.Add(resp.failure()...)
		return validation, nil
	}
	var payload struct {
		Permissions map[string]struct {
			HavePermission bool `json:"havePermission"`
		} `json:"permissions"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return validation, fmt.Errorf("parse permissions %s: %w", issueID, err)
	}
	if !payload.Permissions["ADD_COMMENTS"].HavePermission {
		validation.Add(fmt.Sprintf("User '%s' does not have permission to comment on issue %s.", identity.Name, issueID))
	}
	return validation, nil
}

// ExecuteUpdate adds the validated comment.
func (c *Client) ExecuteUpdate(ctx context.Context, identity tracker.Identity, validation tracker.UpdateValidation) (tracker.IssueResult, error) {
	var result tracker.IssueResult
	if !validation.IsValid() {
		result.Add(validation.Messages...)
		return result, nil
	}
	body := map[string]interface{}{"body": validation.Params.Comment}
	if validation.Params.VisibilityRole != "" {
		body["visibility"] = map[string]string{"type": "role", "value": validation.Params.VisibilityRole}
	}
	resp, err := c.do(ctx, &identity, http.MethodPost, "/rest/api/2/issue/"+url.PathEscape(validation.IssueID)+"/comment", body)
	if err != nil {
		return result, fmt.Errorf("comment issue %s: %w", validation.IssueID, err)
	}
	if !resp.ok() {
		result.Add(resp.failure()...)
		return result, nil
	}
	result.Issue = &tracker.Issue{ID: validation.IssueID}
	return result, nil
}

func (c *Client) transitions(ctx context.Context, identity tracker.Identity, issueRef string, withFields bool) (transitionsPayload, tracker.Errors, error) {
	var payload transitionsPayload
	var errs tracker.Errors
	path := "/rest/api/2/issue/" + url.PathEscape(issueRef) + "/transitions"
	if withFields {
		path += "?expand=transitions.fields"
	}
	resp, err := c.do(ctx, &identity, http.MethodGet, path, nil)
	if err != nil {
		return payload, errs, fmt.Errorf("get transitions %s: %w", issueRef, err)
	}
	if !resp.ok() {
		errs.Add(resp.failure()...)
		return payload, errs, nil
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return payload, errs, fmt.Errorf("parse transitions %s: %w", issueRef, err)
	}
	return payload, errs, nil
}

func issueRef(issue tracker.Issue) string {
	if issue.ID != "" {
		return issue.ID
	}
	return issue.Key
}
