package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"jirahooks/pkg/tracker"
)

var _ tracker.Directory = (*Client)(nil)

type userPayload struct {
	Name         string `json:"name"`
	Key          string `json:"key"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	Active       *bool  `json:"active"`
}

// FindUsersByEmail searches Jira users as the service account and keeps the
// ones whose email address matches, in the order Jira returns them.
func (c *Client) FindUsersByEmail(ctx context.Context, email string) ([]tracker.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	query := url.Values{"username": {email}, "query": {email}, "maxResults": {"50"}}
	resp, err := c.do(ctx, nil, http.MethodGet, "/rest/api/2/user/search?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("search users: %s", strings.Join(resp.failure(), "; "))
	}
	var users []userPayload
	if err := json.Unmarshal(resp.body, &users); err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}
	out := make([]tracker.Identity, 0, len(users))
	for _, u := range users {
		if !strings.EqualFold(u.EmailAddress, email) {
			continue
		}
		if u.Active != nil && !*u.Active {
			continue
		}
		out = append(out, tracker.Identity{
			Name:        u.Name,
			Key:         u.Key,
			Email:       u.EmailAddress,
			DisplayName: u.DisplayName,
		})
	}
	return out, nil
}
