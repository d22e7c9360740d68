package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vocdoni/semaphore-aa-vote/log"
	stg "github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

type sessionKey struct{}

// authenticate resolves the bearer token of the request into the voting
// session of its user.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			ErrUnauthorized.Write(w)
			return
		}
		userID, err := a.tokens.ParseToken(token)
		if err != nil {
			ErrUnauthorized.WithErr(err).Write(w)
			return
		}
		user, err := a.storage.User(userID)
		if err != nil {
			if errors.Is(err, stg.ErrNotFound) {
				ErrUnauthorized.With("unknown user").Write(w)
				return
			}
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		ss, err := a.voting.NewSession(user)
		if err != nil {
			log.Warnw("cannot open session", "user", user.ID, "error", err)
			ErrUnauthorized.WithErr(err).Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, ss)))
	})
}

// session returns the session set by authenticate.
func session(r *http.Request) *voting.Session {
	ss, _ := r.Context().Value(sessionKey{}).(*voting.Session)
	return ss
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
