package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"

	"jirahooks/internal"
	"jirahooks/pkg/reconcile"
)

// ErrMediaTypeRejected is returned for push requests that are not JSON.
var ErrMediaTypeRejected = errors.New("unsupported media type")

const mediaTypeMessage = "Type must be 'application/json'"

// Processor applies pushed commits.
type Processor interface {
	ProcessCommits(ctx context.Context, commits []reconcile.Commit) error
}

func checkMediaType(r *http.Request) error {
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.HasPrefix(contentType, "application/json") {
		return ErrMediaTypeRejected
	}
	return nil
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-Id")); id != "" {
		return id
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}

func limitBody(w http.ResponseWriter, r *http.Request, maxBody int64) {
	if maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}
}

func readFailureStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// process runs commits detached from client cancellation, so a dropped
// connection does not abandon a commit halfway through its actions.
func process(r *http.Request, processor Processor, logger *log.Logger, provider, reqID string, commits []reconcile.Commit) {
	logger.Printf("info push provider=%s commits=%d", provider, len(commits))
	if processor == nil || len(commits) == 0 {
		return
	}
	ctx := internal.WithSource(context.WithoutCancel(r.Context()), provider, reqID)
	ctx = reconcile.ContextWithLogger(ctx, logger)
	if err := processor.ProcessCommits(ctx, commits); err != nil {
		logger.Printf("info push provider=%s finished with errors: %v", provider, err)
	}
}

func newHandlerLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return internal.NewLogger("webhook")
	}
	return logger
}
