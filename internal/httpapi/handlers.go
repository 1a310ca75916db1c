package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"parley.org/internal/auth"
	"parley.org/internal/space"
	"parley.org/internal/token"
)

const sessionTTL = 10 * time.Minute

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.Register(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "invalid username or password")
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "user already exists")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.Header().Set("Location", "/users/"+req.Username)
	writeJSON(w, http.StatusCreated, map[string]any{"username": req.Username})
}

// handleLogin exchanges Basic credentials for a fresh token. The guard
// has already verified the credentials, so only issuance can fail here.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	expiry := time.Now().Add(sessionTTL)
	id, err := a.tokens.Create(r.Context(), w, r, token.New(subject, expiry))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      id,
		"expires_at": expiry.UTC().Format(time.RFC3339),
	})
}

// handleLogout revokes the presented token. Only token-authenticated
// sessions can be revoked; Basic credentials have nothing to revoke.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := bearerTokenID(r.Context())
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "bearer token required")
		return
	}
	if err := a.tokens.Revoke(r.Context(), r, id); err != nil && !errors.Is(err, token.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "revocation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

type createSpaceRequest struct {
	Name string `json:"name"`
}

func (a *API) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req createSpaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	owner, _ := auth.SubjectFromContext(r.Context())
	sp, err := a.spaces.Create(r.Context(), req.Name, owner)
	if err != nil {
		handleSpaceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/spaces/%d", sp.ID))
	writeJSON(w, http.StatusCreated, sp)
}

func (a *API) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := a.spaces.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

type postMessageRequest struct {
	Message string `json:"message"`
}

func (a *API) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spaceID, _ := strconv.ParseInt(r.PathValue("spaceID"), 10, 64)
	author, _ := auth.SubjectFromContext(r.Context())
	msg, err := a.spaces.PostMessage(r.Context(), spaceID, author, req.Message)
	if err != nil {
		handleSpaceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/spaces/%d/messages/%d", spaceID, msg.ID))
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	spaceID, _ := strconv.ParseInt(r.PathValue("spaceID"), 10, 64)
	since := time.Now().Add(-time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}
	msgs, err := a.spaces.ListMessages(r.Context(), spaceID, since)
	if err != nil {
		handleSpaceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (a *API) handleReadMessage(w http.ResponseWriter, r *http.Request) {
	spaceID, _ := strconv.ParseInt(r.PathValue("spaceID"), 10, 64)
	msgID, err := strconv.ParseInt(r.PathValue("msgID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "message not found")
		return
	}
	msg, err := a.spaces.ReadMessage(r.Context(), spaceID, msgID)
	if err != nil {
		handleSpaceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type addMemberRequest struct {
	Username    string `json:"username"`
	Permissions string `json:"permissions"`
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spaceID, _ := strconv.ParseInt(r.PathValue("spaceID"), 10, 64)
	if err := a.spaces.AddMember(r.Context(), spaceID, req.Username, auth.Perms(req.Permissions)); err != nil {
		handleSpaceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"username":    req.Username,
		"permissions": req.Permissions,
	})
}

func (a *API) handleReadLogs(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	entries, err := a.audit.Read(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func handleSpaceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, space.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, space.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, space.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "member already added")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
