package jira

import (
	"context"

	"jirahooks/pkg/reconcile"
	"jirahooks/pkg/tracker"
)

// ServiceAccountListener warns once per commit when the committer has no
// personal token. With the service account fallback enabled the commit's
// calls go out as the service account; otherwise they fail.
func (c *Client) ServiceAccountListener(logger reconcile.Logger) reconcile.Listener {
	return reconcile.Listener{
		OnImpersonate: func(ctx context.Context, commit reconcile.Commit, identity tracker.Identity) {
			if logger == nil || c.HasUserCredentials(identity) {
				return
			}
			if c.allowService {
				logger.Printf("warn acting as service account for user=%s commit=%s", identity.Name, commit.ID)
				return
			}
			logger.Printf("warn no jira token for user=%s commit=%s, actions will fail", identity.Name, commit.ID)
		},
	}
}
