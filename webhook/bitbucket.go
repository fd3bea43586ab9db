package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/mail"
	"strings"

	"jirahooks/internal"
	"jirahooks/pkg/reconcile"

	"github.com/go-playground/webhooks/v6/bitbucket"
)

// BitbucketHandler handles repo:push webhooks from Bitbucket Cloud.
type BitbucketHandler struct {
	hook      *bitbucket.Webhook
	processor Processor
	logger    *log.Logger
	maxBody   int64
}

// NewBitbucketHandler creates a new BitbucketHandler. With a non-empty uuid
// only requests carrying that X-Hook-UUID are accepted.
func NewBitbucketHandler(processor Processor, logger *log.Logger, maxBody int64, uuid string) (*BitbucketHandler, error) {
	options := make([]bitbucket.Option, 0, 1)
	if uuid != "" {
		options = append(options, bitbucket.Options.UUID(uuid))
	}
	hook, err := bitbucket.New(options...)
	if err != nil {
		return nil, err
	}
	return &BitbucketHandler{hook: hook, processor: processor, logger: newHandlerLogger(logger), maxBody: maxBody}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *BitbucketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("bitbucket")
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	limitBody(w, r, h.maxBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		internal.IncParseError("bitbucket")
		w.WriteHeader(readFailureStatus(err))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	if _, err := h.hook.Parse(r, bitbucket.RepoPushEvent); err != nil {
		if errors.Is(err, bitbucket.ErrEventNotFound) {
			logger.Printf("info ignoring bitbucket event=%s", r.Header.Get("X-Event-Key"))
			respondOK(w)
			return
		}
		logger.Printf("warn bitbucket parse failed: %v", err)
		internal.IncParseError("bitbucket")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	process(r, h.processor, logger, "bitbucket", reqID, bitbucketCommits(rawBody, logger))
	respondOK(w)
}

// bitbucketPush is the part of repo:push the typed payload drops: the
// commit author only carries its email inside author.raw.
type bitbucketPush struct {
	Push struct {
		Changes []struct {
			Commits []struct {
				Hash    string `json:"hash"`
				Message string `json:"message"`
				Author  struct {
					Raw string `json:"raw"`
				} `json:"author"`
				Links struct {
					HTML struct {
						Href string `json:"href"`
					} `json:"html"`
				} `json:"links"`
			} `json:"commits"`
		} `json:"changes"`
	} `json:"push"`
}

// bitbucketCommits maps every change's commits, oldest first. Bitbucket
// lists them newest first and has no committer; the author stands in.
func bitbucketCommits(raw []byte, logger *log.Logger) []reconcile.Commit {
	var push bitbucketPush
	if err := json.Unmarshal(raw, &push); err != nil {
		logger.Printf("warn invalid bitbucket payload: %v", err)
		return nil
	}
	var commits []reconcile.Commit
	for _, change := range push.Push.Changes {
		for i := len(change.Commits) - 1; i >= 0; i-- {
			c := change.Commits[i]
			person := parseRawAuthor(c.Author.Raw)
			if c.Hash == "" || person.Email == "" {
				logger.Printf("warn skipping commit id=%q: missing id or author email", c.Hash)
				continue
			}
			commits = append(commits, reconcile.Commit{
				ID:        c.Hash,
				Message:   c.Message,
				URL:       c.Links.HTML.Href,
				Author:    person,
				Committer: person,
			})
		}
	}
	return commits
}

// parseRawAuthor splits "Name <email>".
func parseRawAuthor(raw string) reconcile.Person {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reconcile.Person{}
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return reconcile.Person{Name: addr.Name, Email: addr.Address}
	}
	open, end := strings.LastIndex(raw, "<"), strings.LastIndex(raw, ">")
	if open >= 0 && end > open {
		return reconcile.Person{
			Name:  strings.TrimSpace(raw[:open]),
			Email: strings.TrimSpace(raw[open+1 : end]),
		}
	}
	return reconcile.Person{Name: raw}
}
