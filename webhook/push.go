package webhook

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"jirahooks/internal"
	"jirahooks/pkg/reconcile"
)

// PushHandler accepts Gitea/Gogs style push payloads:
// {"commits":[{"id","message","url","author":{..},"committer":{..}}]}.
type PushHandler struct {
	processor Processor
	logger    *log.Logger
	maxBody   int64
}

// NewPushHandler creates a new PushHandler.
func NewPushHandler(processor Processor, logger *log.Logger, maxBody int64) *PushHandler {
	return &PushHandler{processor: processor, logger: newHandlerLogger(logger), maxBody: maxBody}
}

// ServeHTTP handles an incoming HTTP request.
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("push")
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	if err := checkMediaType(r); err != nil {
		logger.Printf("warn %v content_type=%q", err, r.Header.Get("Content-Type"))
		http.Error(w, mediaTypeMessage, http.StatusUnsupportedMediaType)
		return
	}

	limitBody(w, r, h.maxBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		internal.IncParseError("push")
		w.WriteHeader(readFailureStatus(err))
		return
	}

	process(r, h.processor, logger, "push", reqID, DecodeCommits(rawBody, logger))
	respondOK(w)
}

// DecodeCommits extracts commits from a push payload. Malformed JSON or a
// missing commits array yields no commits; elements without an id or a
// committer email are skipped.
func DecodeCommits(raw []byte, logger *log.Logger) []reconcile.Commit {
	var envelope struct {
		Commits json.RawMessage `json:"commits"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logger.Printf("warn invalid push payload: %v", err)
		internal.IncParseError("push")
		return nil
	}
	if len(envelope.Commits) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(envelope.Commits, &items); err != nil {
		logger.Printf("warn push payload commits is not an array")
		return nil
	}

	commits := make([]reconcile.Commit, 0, len(items))
	for i, item := range items {
		var commit reconcile.Commit
		if err := json.Unmarshal(item, &commit); err != nil {
			logger.Printf("warn skipping commit index=%d: %v", i, err)
			continue
		}
		if commit.ID == "" || commit.Committer.Email == "" {
			logger.Printf("warn skipping commit index=%d id=%q: missing id or committer email", i, commit.ID)
			continue
		}
		commits = append(commits, commit)
	}
	return commits
}
