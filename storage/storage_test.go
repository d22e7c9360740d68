package storage

import (
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestUsers(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, err := stg.User("missing")
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	created := time.Unix(1700000000, 0)
	u := &User{
		ID:            "3c1e6b0a-5d7e-4a59-9a77-6a3f0c8d2e11",
		Name:          "alice",
		DisplayName:   "Alice",
		Credentials:   []byte(`[{"id":"AQID"}]`),
		CredentialIDs: [][]byte{{0x01, 0x02, 0x03}},
		SessionKey:    []byte{0xaa, 0xbb},
		Created:       created,
	}
	c.Assert(stg.SetUser(u), qt.IsNil)

	got, err := stg.User(u.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "alice")
	c.Assert(got.SessionKey, qt.DeepEquals, u.SessionKey)
	c.Assert(got.Created.Equal(created), qt.IsTrue)

	byCred, err := stg.UserByCredential([]byte{0x01, 0x02, 0x03})
	c.Assert(err, qt.IsNil)
	c.Assert(byCred.ID, qt.Equals, u.ID)
	_, err = stg.UserByCredential([]byte{0x09})
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(stg.SetUser(&User{}), qt.Not(qt.IsNil))
}

func TestCeremonies(t *testing.T) {
	c := qt.New(t)
	stg := New(memdb.New())

	c.Assert(stg.SetCeremony(&Ceremony{
		ID:      "live",
		Kind:    CeremonyLogin,
		Data:    []byte(`{"challenge":"abc"}`),
		Expires: time.Now().Add(time.Minute),
	}), qt.IsNil)
	c.Assert(stg.SetCeremony(&Ceremony{
		ID:      "old",
		Kind:    CeremonyRegistration,
		UserID:  "u1",
		Expires: time.Now().Add(-time.Minute),
	}), qt.IsNil)

	cer, err := stg.Ceremony("live")
	c.Assert(err, qt.IsNil)
	c.Assert(cer.Kind, qt.Equals, CeremonyLogin)
	c.Assert(string(cer.Data), qt.Equals, `{"challenge":"abc"}`)

	_, err = stg.Ceremony("old")
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(stg.DeleteCeremony("live"), qt.IsNil)
	_, err = stg.Ceremony("live")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(stg.DeleteCeremony("live"), qt.ErrorIs, ErrNotFound)
}

func TestPurgeExpiredCeremonies(t *testing.T) {
	c := qt.New(t)
	stg := New(memdb.New())
	now := time.Now()
	for i, ttl := range []time.Duration{-time.Hour, -time.Second, time.Hour} {
		c.Assert(stg.SetCeremony(&Ceremony{
			ID:      string(rune('a' + i)),
			Kind:    CeremonyLogin,
			Expires: now.Add(ttl),
		}), qt.IsNil)
	}
	n, err := stg.PurgeExpiredCeremonies(now)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
	_, err = stg.Ceremony("c")
	c.Assert(err, qt.IsNil)
}

func TestMembers(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	group := big.NewInt(2)
	other := big.NewInt(3)

	for _, idx := range []uint64{2, 0, 1, 256} {
		added, err := stg.AddMember(&Member{
			GroupID:     types.NewBigInt(group),
			Index:       idx,
			Commitment:  types.NewInt(int64(100 + idx)),
			Root:        types.NewInt(1),
			BlockNumber: 10 + idx,
		})
		c.Assert(err, qt.IsNil)
		c.Assert(added, qt.IsTrue)
	}
	added, err := stg.AddMember(&Member{GroupID: types.NewBigInt(other), Index: 0, Commitment: types.NewInt(9)})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsTrue)

	// duplicated index is skipped
	added, err = stg.AddMember(&Member{GroupID: types.NewBigInt(group), Index: 1, Commitment: types.NewInt(555)})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.IsFalse)

	members, err := stg.Members(group)
	c.Assert(err, qt.IsNil)
	c.Assert(members, qt.HasLen, 4)
	for i, want := range []uint64{0, 1, 2, 256} {
		c.Assert(members[i].Index, qt.Equals, want)
		c.Assert(members[i].Commitment.MathBigInt().Int64(), qt.Equals, int64(100+want))
	}

	m, err := stg.MemberByCommitment(group, big.NewInt(102))
	c.Assert(err, qt.IsNil)
	c.Assert(m.Index, qt.Equals, uint64(2))
	_, err = stg.MemberByCommitment(group, big.NewInt(9))
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	otherMembers, err := stg.Members(other)
	c.Assert(err, qt.IsNil)
	c.Assert(otherMembers, qt.HasLen, 1)
}

func TestSyncCursor(t *testing.T) {
	c := qt.New(t)
	stg := New(memdb.New())
	group := big.NewInt(2)

	block, err := stg.LastSyncedBlock(group)
	c.Assert(err, qt.IsNil)
	c.Assert(block, qt.Equals, uint64(0))

	c.Assert(stg.SetLastSyncedBlock(group, 12345), qt.IsNil)
	block, err = stg.LastSyncedBlock(group)
	c.Assert(err, qt.IsNil)
	c.Assert(block, qt.Equals, uint64(12345))

	block, err = stg.LastSyncedBlock(big.NewInt(3))
	c.Assert(err, qt.IsNil)
	c.Assert(block, qt.Equals, uint64(0))
}
