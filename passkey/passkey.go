// Package passkey implements the WebAuthn relying party of the node. Every
// registered user gets a server held ECDSA key that owns their smart account,
// and a successful login is exchanged for a signed session token.
package passkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/crypto/ethereum"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/storage"
)

// DefaultCeremonyTTL is used when the configuration does not set one.
const DefaultCeremonyTTL = 5 * time.Minute

var (
	ErrCeremonyNotFound = errors.New("passkey ceremony not found or expired")
	ErrCeremonyKind     = errors.New("passkey ceremony kind mismatch")
	ErrInvalidName      = errors.New("user name is required")
	ErrEmptyResponse    = errors.New("credential response is required")
)

// ceremonyData is what the node keeps between the begin and finish steps.
type ceremonyData struct {
	Name    string               `json:"name,omitempty"`
	Session webauthn.SessionData `json:"session"`
}

// RelyingParty runs the registration and login ceremonies against the
// storage.
type RelyingParty struct {
	wa          *webauthn.WebAuthn
	stg         *storage.Storage
	ceremonyTTL time.Duration
	now         func() time.Time
}

// New creates the relying party for the configuration.
func New(cfg config.PasskeyConfig, stg *storage.Storage) (*RelyingParty, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage is required")
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid webauthn configuration: %w", err)
	}
	ttl := cfg.CeremonyTTL
	if ttl <= 0 {
		ttl = DefaultCeremonyTTL
	}
	return &RelyingParty{
		wa:          wa,
		stg:         stg,
		ceremonyTTL: ttl,
		now:         time.Now,
	}, nil
}

// BeginRegistration starts the creation of a passkey for a new user with the
// given name. It returns the options for the browser and the ceremony ID that
// must be sent back on FinishRegistration.
func (rp *RelyingParty) BeginRegistration(name string) (*protocol.CredentialCreation, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrInvalidName
	}
	u := &webauthnUser{user: &storage.User{ID: uuid.NewString(), Name: name, DisplayName: name}}
	creation, session, err := rp.wa.BeginRegistration(u,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, "", fmt.Errorf("begin registration: %w", err)
	}
	id, err := rp.storeCeremony(storage.CeremonyRegistration, u.user.ID, name, session)
	if err != nil {
		return nil, "", err
	}
	log.Debugw("passkey registration started", "ceremony", id, "user", u.user.ID)
	return creation, id, nil
}

// FinishRegistration validates the attestation sent by the browser and stores
// the user with its new credential. On the first registration of the user a
// session key is generated for its smart account.
func (rp *RelyingParty) FinishRegistration(ceremonyID string, body []byte) (*storage.User, error) {
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}
	cer, data, err := rp.loadCeremony(ceremonyID, storage.CeremonyRegistration)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse credential response: %w", err)
	}

	user, err := rp.stg.User(cer.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user = &storage.User{
			ID:          cer.UserID,
			Name:        data.Name,
			DisplayName: data.Name,
			Created:     rp.now(),
		}
	case err != nil:
		return nil, err
	}
	wu := &webauthnUser{user: user}
	if err := wu.load(); err != nil {
		return nil, err
	}
	credential, err := rp.wa.CreateCredential(wu, data.Session, parsed)
	if err != nil {
		return nil, fmt.Errorf("validate credential response: %w", err)
	}
	wu.credentials = append(wu.credentials, *credential)
	if err := wu.store(); err != nil {
		return nil, err
	}
	if len(user.SessionKey) == 0 {
		keys := ethereum.NewSignKeys()
		if err := keys.Generate(); err != nil {
			return nil, fmt.Errorf("cannot generate session key: %w", err)
		}
		user.SessionKey = keys.PrivateKeyBytes()
		log.Infow("session key created", "user", user.ID, "owner", keys.Address().Hex())
	}
	if err := rp.stg.SetUser(user); err != nil {
		return nil, err
	}
	rp.dropCeremony(ceremonyID)
	return user, nil
}

// BeginLogin starts a discoverable login, the authenticator tells which user
// the passkey belongs to.
func (rp *RelyingParty) BeginLogin() (*protocol.CredentialAssertion, string, error) {
	assertion, session, err := rp.wa.BeginDiscoverableLogin()
	if err != nil {
		return nil, "", fmt.Errorf("begin login: %w", err)
	}
	id, err := rp.storeCeremony(storage.CeremonyLogin, "", "", session)
	if err != nil {
		return nil, "", err
	}
	return assertion, id, nil
}

// FinishLogin validates the assertion and returns the authenticated user. The
// stored credential is updated with the new sign counter.
func (rp *RelyingParty) FinishLogin(ceremonyID string, body []byte) (*storage.User, error) {
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}
	_, data, err := rp.loadCeremony(ceremonyID, storage.CeremonyLogin)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse credential response: %w", err)
	}
	validated, credential, err := rp.wa.ValidatePasskeyLogin(rp.userHandler, data.Session, parsed)
	if err != nil {
		return nil, fmt.Errorf("validate passkey login: %w", err)
	}
	wu, ok := validated.(*webauthnUser)
	if !ok {
		return nil, fmt.Errorf("passkey user type mismatch")
	}
	wu.replaceCredential(*credential)
	if err := wu.store(); err != nil {
		return nil, err
	}
	if err := rp.stg.SetUser(wu.user); err != nil {
		return nil, err
	}
	rp.dropCeremony(ceremonyID)
	log.Infow("passkey login", "user", wu.user.ID)
	return wu.user, nil
}

func (rp *RelyingParty) userHandler(_, userHandle []byte) (webauthn.User, error) {
	if len(userHandle) == 0 {
		return nil, fmt.Errorf("user handle is required")
	}
	user, err := rp.stg.User(string(userHandle))
	if err != nil {
		return nil, fmt.Errorf("unknown user: %w", err)
	}
	wu := &webauthnUser{user: user}
	if err := wu.load(); err != nil {
		return nil, err
	}
	return wu, nil
}

func (rp *RelyingParty) storeCeremony(kind, userID, name string, session *webauthn.SessionData) (string, error) {
	if session == nil {
		return "", fmt.Errorf("session data is required")
	}
	payload, err := json.Marshal(&ceremonyData{Name: name, Session: *session})
	if err != nil {
		return "", fmt.Errorf("encode session data: %w", err)
	}
	id := uuid.NewString()
	if err := rp.stg.SetCeremony(&storage.Ceremony{
		ID:      id,
		Kind:    kind,
		UserID:  userID,
		Data:    payload,
		Expires: rp.now().Add(rp.ceremonyTTL),
	}); err != nil {
		return "", fmt.Errorf("store ceremony: %w", err)
	}
	return id, nil
}

func (rp *RelyingParty) loadCeremony(id, kind string) (*storage.Ceremony, *ceremonyData, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, ErrCeremonyNotFound
	}
	cer, err := rp.stg.Ceremony(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrCeremonyNotFound
		}
		return nil, nil, err
	}
	if cer.Kind != kind {
		return nil, nil, ErrCeremonyKind
	}
	data := &ceremonyData{}
	if err := json.Unmarshal(cer.Data, data); err != nil {
		return nil, nil, fmt.Errorf("decode session data: %w", err)
	}
	return cer, data, nil
}

func (rp *RelyingParty) dropCeremony(id string) {
	if err := rp.stg.DeleteCeremony(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warnw("cannot delete passkey ceremony", "ceremony", id, "error", err)
	}
}

// PurgeCeremonies removes the ceremonies that were never finished.
func (rp *RelyingParty) PurgeCeremonies() (int, error) {
	return rp.stg.PurgeExpiredCeremonies(rp.now())
}

// webauthnUser adapts a stored user to the webauthn.User interface.
type webauthnUser struct {
	user        *storage.User
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.user.ID) }
func (u *webauthnUser) WebAuthnName() string                       { return u.user.Name }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.user.DisplayName }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// load decodes the credentials of the stored user.
func (u *webauthnUser) load() error {
	u.credentials = nil
	if len(u.user.Credentials) == 0 {
		return nil
	}
	if err := json.Unmarshal(u.user.Credentials, &u.credentials); err != nil {
		return fmt.Errorf("decode credentials of %s: %w", u.user.ID, err)
	}
	return nil
}

// store encodes the credentials back into the user, refreshing the IDs used
// by the credential index.
func (u *webauthnUser) store() error {
	data, err := json.Marshal(u.credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	u.user.Credentials = data
	u.user.CredentialIDs = make([][]byte, 0, len(u.credentials))
	for _, c := range u.credentials {
		u.user.CredentialIDs = append(u.user.CredentialIDs, c.ID)
	}
	return nil
}

func (u *webauthnUser) replaceCredential(c webauthn.Credential) {
	for i := range u.credentials {
		if bytes.Equal(u.credentials[i].ID, c.ID) {
			u.credentials[i] = c
			return
		}
	}
	u.credentials = append(u.credentials, c)
}
