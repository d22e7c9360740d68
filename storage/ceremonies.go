package storage

import (
	"errors"
	"fmt"
	"time"
)

// Ceremony kinds.
const (
	CeremonyRegistration = "registration"
	CeremonyLogin        = "login"
)

// Ceremony is a pending WebAuthn registration or login. Data is the JSON
// encoded session data of the relying party.
type Ceremony struct {
	ID      string    `cbor:"id"`
	Kind    string    `cbor:"kind"`
	UserID  string    `cbor:"userId,omitempty"`
	Data    []byte    `cbor:"data"`
	Expires time.Time `cbor:"expires"`
}

// SetCeremony stores a pending ceremony.
func (s *Storage) SetCeremony(c *Ceremony) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid ceremony")
	}
	return s.setArtifact(ceremonyPrefix, []byte(c.ID), c)
}

// Ceremony returns the pending ceremony with the ID. Expired ceremonies are
// deleted and reported as ErrNotFound.
func (s *Storage) Ceremony(id string) (*Ceremony, error) {
	c := &Ceremony{}
	if err := s.getArtifact(ceremonyPrefix, []byte(id), c); err != nil {
		return nil, err
	}
	if !c.Expires.IsZero() && time.Now().After(c.Expires) {
		if err := s.DeleteCeremony(id); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return c, nil
}

// DeleteCeremony removes a ceremony once it is finished.
func (s *Storage) DeleteCeremony(id string) error {
	return s.deleteArtifact(ceremonyPrefix, []byte(id))
}

// PurgeExpiredCeremonies deletes every expired ceremony and returns how many
// were removed.
func (s *Storage) PurgeExpiredCeremonies(now time.Time) (int, error) {
	var expired []string
	var decodeErr error
	if err := s.iterateArtifacts(ceremonyPrefix, func(_, value []byte) bool {
		c := &Ceremony{}
		if err := decodeArtifact(value, c); err != nil {
			decodeErr = err
			return false
		}
		if !c.Expires.IsZero() && now.After(c.Expires) {
			expired = append(expired, c.ID)
		}
		return true
	}); err != nil {
		return 0, err
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("decode ceremony: %w", decodeErr)
	}
	for _, id := range expired {
		if err := s.DeleteCeremony(id); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}
	return len(expired), nil
}
