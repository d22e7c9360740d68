package storage

import (
	"errors"
	"fmt"
	"time"
)

// User is a passkey user of the node. Credentials holds the JSON encoded
// WebAuthn credentials and CredentialIDs their raw IDs, indexed for login.
// SessionKey is the private key owning the user smart account.
type User struct {
	ID            string    `cbor:"id"`
	Name          string    `cbor:"name"`
	DisplayName   string    `cbor:"displayName"`
	Credentials   []byte    `cbor:"credentials"`
	CredentialIDs [][]byte  `cbor:"credentialIds"`
	SessionKey    []byte    `cbor:"sessionKey"`
	Created       time.Time `cbor:"created"`
}

// SetUser stores the user and indexes its credential IDs.
func (s *Storage) SetUser(u *User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("invalid user")
	}
	if err := s.setArtifact(userPrefix, []byte(u.ID), u); err != nil {
		return fmt.Errorf("could not store user: %w", err)
	}
	for _, credID := range u.CredentialIDs {
		if err := s.setArtifact(credentialPrefix, credID, u.ID); err != nil {
			return fmt.Errorf("could not index credential: %w", err)
		}
	}
	return nil
}

// User returns the user with the given ID or ErrNotFound.
func (s *Storage) User(id string) (*User, error) {
	u := &User{}
	if err := s.getArtifact(userPrefix, []byte(id), u); err != nil {
		return nil, err
	}
	return u, nil
}

// UserByCredential returns the owner of a credential ID or ErrNotFound.
func (s *Storage) UserByCredential(credentialID []byte) (*User, error) {
	var userID string
	if err := s.getArtifact(credentialPrefix, credentialID, &userID); err != nil {
		return nil, err
	}
	u, err := s.User(userID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("credential indexed for missing user %s: %w", userID, ErrNotFound)
	}
	return u, err
}
