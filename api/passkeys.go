package api

import (
	"errors"
	"net/http"

	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/passkey"
	stg "github.com/vocdoni/semaphore-aa-vote/storage"
)

// registerBegin
// POST /passkeys/register/begin
// Starts the registration of a new user, returning the WebAuthn creation
// options for the browser.
func (a *API) registerBegin(w http.ResponseWriter, r *http.Request) {
	req := &RegisterBeginRequest{}
	if err := httpReadJSON(r, req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	options, ceremonyID, err := a.passkeys.BeginRegistration(req.Name)
	if err != nil {
		if errors.Is(err, passkey.ErrInvalidName) {
			ErrPasskeyCeremony.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &RegisterBeginResponse{CeremonyID: ceremonyID, Options: options})
}

// registerFinish
// POST /passkeys/register/finish
// Verifies the new credential, creates the user and returns its session
// token.
func (a *API) registerFinish(w http.ResponseWriter, r *http.Request) {
	req, ok := readCeremonyFinish(w, r)
	if !ok {
		return
	}
	user, err := a.passkeys.FinishRegistration(req.CeremonyID, req.Credential)
	if err != nil {
		log.Debugw("passkey registration failed", "ceremony", req.CeremonyID, "error", err)
		ErrPasskeyCeremony.WithErr(err).Write(w)
		return
	}
	log.Infow("passkey user registered", "user", user.ID, "name", user.Name)
	a.writeSession(w, user)
}

// loginBegin
// POST /passkeys/login/begin
// Starts a discoverable login, returning the WebAuthn assertion options.
func (a *API) loginBegin(w http.ResponseWriter, r *http.Request) {
	options, ceremonyID, err := a.passkeys.BeginLogin()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &LoginBeginResponse{CeremonyID: ceremonyID, Options: options})
}

// loginFinish
// POST /passkeys/login/finish
// Verifies the assertion and returns a session token for its user.
func (a *API) loginFinish(w http.ResponseWriter, r *http.Request) {
	req, ok := readCeremonyFinish(w, r)
	if !ok {
		return
	}
	user, err := a.passkeys.FinishLogin(req.CeremonyID, req.Credential)
	if err != nil {
		log.Debugw("passkey login failed", "ceremony", req.CeremonyID, "error", err)
		ErrPasskeyCeremony.WithErr(err).Write(w)
		return
	}
	a.writeSession(w, user)
}

func readCeremonyFinish(w http.ResponseWriter, r *http.Request) (*CeremonyFinishRequest, bool) {
	req := &CeremonyFinishRequest{}
	if err := httpReadJSON(r, req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return nil, false
	}
	if req.CeremonyID == "" || len(req.Credential) == 0 {
		ErrMalformedBody.With("ceremonyId and credential are required").Write(w)
		return nil, false
	}
	return req, true
}

func (a *API) writeSession(w http.ResponseWriter, user *stg.User) {
	token, err := a.tokens.IssueToken(user.ID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &SessionResponse{Token: token, User: userInfo(user)})
}

func userInfo(u *stg.User) *UserInfo {
	return &UserInfo{ID: u.ID, Name: u.Name, DisplayName: u.DisplayName}
}
