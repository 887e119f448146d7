package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"classroom-relay/internal/relay"
	"classroom-relay/internal/store"
)

// Sessions is the relay surface the REST API needs
type Sessions interface {
	Sessions(ctx context.Context) ([]relay.Snapshot, error)
	Snapshot(ctx context.Context, id string) (relay.Snapshot, error)
	Register(ctx context.Context, reg relay.Registration) (relay.Snapshot, error)
	ForceRemove(ctx context.Context, id string) error
	Stats(ctx context.Context) (relay.Stats, error)
}

// Records reads persisted session records. Optional.
type Records interface {
	GetSessionRecord(ctx context.Context, id string) (store.SessionRecord, error)
	ListSessionRecords(ctx context.Context, limit, offset int) ([]store.SessionRecord, error)
	ListSessionRecordsByUser(ctx context.Context, userID string, limit, offset int) ([]store.SessionRecord, error)
}

type SessionsAPI struct {
	Relay   Sessions
	Records Records
}

// List returns every live room
func (a *SessionsAPI) List(w http.ResponseWriter, r *http.Request) {
	out, err := a.Relay.Sessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *SessionsAPI) Get(w http.ResponseWriter, r *http.Request) {
	s, err := a.Relay.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Create pre-registers a room; an empty body gets a generated id
func (a *SessionsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var reg relay.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	s, err := a.Relay.Register(r.Context(), reg)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+s.ID)
	writeJSON(w, http.StatusCreated, s)
}

func (a *SessionsAPI) Delete(w http.ResponseWriter, r *http.Request) {
	if err := a.Relay.ForceRemove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Record returns the persisted record of a session, live or not
func (a *SessionsAPI) Record(w http.ResponseWriter, r *http.Request) {
	if a.Records == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "session records disabled"})
		return
	}
	rec, err := a.Records.GetSessionRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListRecords returns up to limit (default 50, max 200) records, only
// those of one participant when userId is set
func (a *SessionsAPI) ListRecords(w http.ResponseWriter, r *http.Request) {
	if a.Records == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "session records disabled"})
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	var (
		out []store.SessionRecord
		err error
	)
	if uid := strings.TrimSpace(r.URL.Query().Get("userId")); uid != "" {
		out, err = a.Records.ListSessionRecordsByUser(r.Context(), uid, limit, offset)
	} else {
		out, err = a.Records.ListSessionRecords(r.Context(), limit, offset)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps known errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, relay.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, relay.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, relay.ErrStopped), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
