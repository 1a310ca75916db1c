package httpapi

import (
	"net/http"
	"strconv"

	"parley.org/internal/auth"
)

// requireAuthentication rejects requests with no resolved subject,
// challenging for a bearer token.
func (a *API) requireAuthentication(next http.HandlerFunc) http.HandlerFunc {
	return a.requireSubject(bearerChallenge, next)
}

// requireBasicCredentials guards the login route, where the caller
// authenticates with HTTP Basic credentials rather than a token.
func (a *API) requireBasicCredentials(next http.HandlerFunc) http.HandlerFunc {
	return a.requireSubject(basicChallenge, next)
}

func (a *API) requireSubject(challenge string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.SubjectFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", challenge)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// requirePermissions gates a space-scoped route on the caller holding at
// least the required permission set. Holding a superset is sufficient.
func (a *API) requirePermissions(required auth.Perms, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuthentication(func(w http.ResponseWriter, r *http.Request) {
		subject, _ := auth.SubjectFromContext(r.Context())
		spaceID, err := strconv.ParseInt(r.PathValue("spaceID"), 10, 64)
		if err != nil {
			writeError(w, r, http.StatusNotFound, "space not found")
			return
		}
		held, err := a.auth.Permissions(r.Context(), spaceID, subject)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if !held.Allows(required) {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		next(w, r)
	})
}
