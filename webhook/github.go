package webhook

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"jirahooks/internal"
	"jirahooks/pkg/reconcile"

	"github.com/go-playground/webhooks/v6/github"
)

// GitHubHandler handles push webhooks from GitHub.
type GitHubHandler struct {
	hook      *github.Webhook
	processor Processor
	logger    *log.Logger
	maxBody   int64
}

// NewGitHubHandler creates a new GitHubHandler. Payloads are not signature checked.
func NewGitHubHandler(processor Processor, logger *log.Logger, maxBody int64) (*GitHubHandler, error) {
	hook, err := github.New()
	if err != nil {
		return nil, err
	}
	return &GitHubHandler{hook: hook, processor: processor, logger: newHandlerLogger(logger), maxBody: maxBody}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("github")
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	limitBody(w, r, h.maxBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		internal.IncParseError("github")
		w.WriteHeader(readFailureStatus(err))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	payload, err := h.hook.Parse(r, github.PushEvent, github.PingEvent)
	if err != nil {
		if errors.Is(err, github.ErrEventNotFound) {
			logger.Printf("info ignoring github event=%s", r.Header.Get("X-GitHub-Event"))
			respondOK(w)
			return
		}
		logger.Printf("warn github parse failed: %v", err)
		internal.IncParseError("github")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if push, ok := payload.(github.PushPayload); ok {
		process(r, h.processor, logger, "github", reqID, githubCommits(push, logger))
	}
	respondOK(w)
}

func githubCommits(push github.PushPayload, logger *log.Logger) []reconcile.Commit {
	commits := make([]reconcile.Commit, 0, len(push.Commits))
	for i, c := range push.Commits {
		commit := reconcile.Commit{
			ID:        c.ID,
			Message:   c.Message,
			URL:       c.URL,
			Author:    reconcile.Person{Name: c.Author.Name, Email: c.Author.Email},
			Committer: reconcile.Person{Name: c.Committer.Name, Email: c.Committer.Email},
		}
		if commit.ID == "" || commit.Committer.Email == "" {
			logger.Printf("warn skipping commit index=%d id=%q: missing id or committer email", i, commit.ID)
			continue
		}
		commits = append(commits, commit)
	}
	return commits
}
