package webhook

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"jirahooks/internal"
	"jirahooks/pkg/reconcile"

	"github.com/go-playground/webhooks/v6/gitlab"
)

// GitLabHandler handles push webhooks from GitLab.
type GitLabHandler struct {
	hook      *gitlab.Webhook
	processor Processor
	logger    *log.Logger
	maxBody   int64
}

// NewGitLabHandler creates a new GitLabHandler. Payloads are not signature checked.
func NewGitLabHandler(processor Processor, logger *log.Logger, maxBody int64) (*GitLabHandler, error) {
	hook, err := gitlab.New()
	if err != nil {
		return nil, err
	}
	return &GitLabHandler{hook: hook, processor: processor, logger: newHandlerLogger(logger), maxBody: maxBody}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitLabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("gitlab")
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	limitBody(w, r, h.maxBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		internal.IncParseError("gitlab")
		w.WriteHeader(readFailureStatus(err))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	payload, err := h.hook.Parse(r, gitlab.PushEvents)
	if err != nil {
		if errors.Is(err, gitlab.ErrEventNotFound) {
			logger.Printf("info ignoring gitlab event=%s", r.Header.Get("X-Gitlab-Event"))
			respondOK(w)
			return
		}
		logger.Printf("warn gitlab parse failed: %v", err)
		internal.IncParseError("gitlab")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if push, ok := payload.(gitlab.PushEventPayload); ok {
		process(r, h.processor, logger, "gitlab", reqID, gitlabCommits(push, logger))
	}
	respondOK(w)
}

// gitlabCommits maps GitLab commits, which only carry an author; the
// author stands in for the committer.
func gitlabCommits(push gitlab.PushEventPayload, logger *log.Logger) []reconcile.Commit {
	commits := make([]reconcile.Commit, 0, len(push.Commits))
	for i, c := range push.Commits {
		person := reconcile.Person{Name: c.Author.Name, Email: c.Author.Email}
		commit := reconcile.Commit{
			ID:        c.ID,
			Message:   c.Message,
			URL:       c.URL,
			Author:    person,
			Committer: person,
		}
		if commit.ID == "" || commit.Committer.Email == "" {
			logger.Printf("warn skipping commit index=%d id=%q: missing id or author email", i, commit.ID)
			continue
		}
		commits = append(commits, commit)
	}
	return commits
}
