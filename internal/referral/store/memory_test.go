package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"refhub/internal/referral/models"
	"refhub/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) create(username, code string) *models.User {
	u, err := s.store.Create(s.ctx, &models.User{Username: username, Code: code})
	s.Require().NoError(err)
	return u
}

func (s *MemoryStoreSuite) TestCreateAndLookups() {
	s.Run("creates and finds by id, code, and username", func() {
		created := s.create("alice", "ALICE123")
		s.NotZero(created.ID)
		s.False(created.CreatedAt.IsZero())

		byID, err := s.store.FindByID(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal("alice", byID.Username)

		byCode, err := s.store.FindByCode(s.ctx, "ALICE123")
		s.Require().NoError(err)
		s.Equal(created.ID, byCode.ID)

		byName, err := s.store.FindByUsername(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal(created.ID, byName.ID)
	})

	s.Run("returns ErrNotFound for unknown identifiers", func() {
		_, err := s.store.FindByID(s.ctx, 9999)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByCode(s.ctx, "NOPE")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestUniqueness() {
	s.create("alice", "ALICE123")

	s.Run("duplicate username maps to ErrUsernameTaken", func() {
		_, err := s.store.Create(s.ctx, &models.User{Username: "alice", Code: "OTHER456"})
		s.Require().ErrorIs(err, ErrUsernameTaken)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("duplicate code maps to ErrCodeTaken", func() {
		_, err := s.store.Create(s.ctx, &models.User{Username: "bob", Code: "ALICE123"})
		s.Require().ErrorIs(err, ErrCodeTaken)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

func (s *MemoryStoreSuite) TestEdges() {
	referrer := s.create("ref", "REF00001")
	referred := s.create("friend", "FRIEND01")

	s.Run("records an edge once", func() {
		inserted, err := s.store.Record(s.ctx, referrer.ID, referred.ID, time.Now())
		s.Require().NoError(err)
		s.True(inserted)

		inserted, err = s.store.Record(s.ctx, referrer.ID, referred.ID, time.Now())
		s.Require().NoError(err)
		s.False(inserted)
	})

	s.Run("lists referred users newest first", func() {
		second := s.create("friend2", "FRIEND02")
		_, err := s.store.Record(s.ctx, referrer.ID, second.ID, time.Now())
		s.Require().NoError(err)

		referredUsers, err := s.store.ListReferred(s.ctx, referrer.ID)
		s.Require().NoError(err)
		s.Require().Len(referredUsers, 2)
		s.Equal("friend2", referredUsers[0].Username)
		s.Equal("friend", referredUsers[1].Username)
	})
}

func (s *MemoryStoreSuite) TestPool() {
	s.Require().NoError(s.store.AddReserved(s.ctx, "vip_usd", "USD", ""))
	s.Require().NoError(s.store.AddReserved(s.ctx, "vip_eur", "EUR", ""))

	s.Run("prefers currency then falls back to oldest", func() {
		acct, err := s.store.ClaimOldest(s.ctx, "EUR")
		s.Require().NoError(err)
		s.Equal("vip_eur", acct.Username)

		acct, err = s.store.ClaimOldest(s.ctx, "GBP")
		s.Require().NoError(err)
		s.Equal("vip_usd", acct.Username)
	})

	s.Run("assignment is one-shot", func() {
		user := s.create("winner", "WINNER01")
		s.Require().NoError(s.store.MarkAssigned(s.ctx, "vip_usd", user.ID, time.Now()))

		err := s.store.MarkAssigned(s.ctx, "vip_usd", user.ID, time.Now())
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("assigned accounts are not claimable", func() {
		acct, err := s.store.ClaimOldest(s.ctx, "USD")
		s.Require().NoError(err)
		s.Equal("vip_eur", acct.Username)
	})

	s.Run("empty pool reports exhaustion", func() {
		user := s.create("winner2", "WINNER02")
		s.Require().NoError(s.store.MarkAssigned(s.ctx, "vip_eur", user.ID, time.Now()))

		_, err := s.store.ClaimOldest(s.ctx, "")
		s.Require().ErrorIs(err, sentinel.ErrExhausted)
	})
}

func (s *MemoryStoreSuite) TestBlacklist() {
	s.Require().NoError(s.store.AddBlacklist(s.ctx, models.KindPhone, "+15550001111", "fraud"))

	entry, err := s.store.FindActive(s.ctx, models.KindPhone, "+15550001111")
	s.Require().NoError(err)
	s.Equal("fraud", entry.Reason)

	_, err = s.store.FindActive(s.ctx, models.KindName, "+15550001111")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestSearch() {
	s.create("alpha_one", "CODE0001")
	s.create("alpha_two", "CODE0002")
	s.create("beta", "ALPHA999")

	s.Run("matches across username and code", func() {
		users, err := s.store.Search(s.ctx, "alpha", 10)
		s.Require().NoError(err)
		s.Len(users, 3)
	})

	s.Run("orders newest first and honors the limit", func() {
		users, err := s.store.Search(s.ctx, "alpha_", 1)
		s.Require().NoError(err)
		s.Require().Len(users, 1)
		s.Equal("alpha_two", users[0].Username)
	})
}

func (s *MemoryStoreSuite) TestSnapshotRestore() {
	s.create("alice", "ALICE123")
	snap := s.store.Snapshot()

	s.create("bob", "BOB45678")
	s.Require().NoError(s.store.AddReserved(s.ctx, "vip", "USD", ""))

	s.store.Restore(snap)

	_, err := s.store.FindByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.store.FindByUsername(s.ctx, "bob")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.ClaimOldest(s.ctx, "")
	s.Require().ErrorIs(err, sentinel.ErrExhausted)
}
