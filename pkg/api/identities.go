package api

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"jirahooks/pkg/storage"
)

// IdentitiesHandler manages the email to Jira user mapping table.
//
//	GET    ?email=     list all mappings, or those of one email
//	PUT    JSON body   create or update a mapping
//	DELETE ?email=&username=
//
// Every request needs "Authorization: Bearer <Token>".
type IdentitiesHandler struct {
	Store  storage.IdentityStore
	Token  string
	Logger *log.Logger
}

type identityRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	UserKey     string `json:"user_key"`
	DisplayName string `json:"display_name"`
	Priority    int    `json:"priority"`
}

func (h *IdentitiesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPut, http.MethodPost:
		h.upsert(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *IdentitiesHandler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return false
	}
	got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) == 1
}

func (h *IdentitiesHandler) list(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	var (
		records []storage.IdentityRecord
		err     error
	)
	if email != "" {
		records, err = h.Store.FindIdentities(r.Context(), email)
	} else {
		records, err = h.Store.ListIdentities(r.Context())
	}
	if err != nil {
		http.Error(w, "list identities failed", http.StatusInternalServerError)
		h.logf("list identities failed: %v", err)
		return
	}
	if records == nil {
		records = []storage.IdentityRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *IdentitiesHandler) upsert(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" {
		http.Error(w, "email and username are required", http.StatusBadRequest)
		return
	}

	record := storage.IdentityRecord{
		Email:       req.Email,
		Username:    req.Username,
		UserKey:     req.UserKey,
		DisplayName: req.DisplayName,
		Priority:    req.Priority,
	}
	if err := h.Store.UpsertIdentity(r.Context(), record); err != nil {
		http.Error(w, "upsert identity failed", http.StatusInternalServerError)
		h.logf("upsert identity failed: %v", err)
		return
	}
	h.logf("identity saved email=%s username=%s", record.Email, record.Username)
	writeJSON(w, http.StatusOK, record)
}

func (h *IdentitiesHandler) delete(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if email == "" || username == "" {
		http.Error(w, "missing email or username", http.StatusBadRequest)
		return
	}
	if err := h.Store.DeleteIdentity(r.Context(), email, username); err != nil {
		http.Error(w, "delete identity failed", http.StatusInternalServerError)
		h.logf("delete identity failed: %v", err)
		return
	}
	h.logf("identity deleted email=%s username=%s", email, username)
	w.WriteHeader(http.StatusNoContent)
}

func (h *IdentitiesHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
