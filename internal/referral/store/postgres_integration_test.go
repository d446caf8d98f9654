//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"refhub/internal/referral/models"
	"refhub/internal/referral/store"
	"refhub/pkg/platform/sentinel"
	txcontext "refhub/pkg/platform/tx"
	"refhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(store.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "referrals", "ref_users", "reserved_accounts", "blacklist")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *PostgresStoreSuite) TestUniqueViolationMapping() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, &models.User{Username: "alice", Code: "ALICE123"})
	s.Require().NoError(err)

	s.Run("duplicate username", func() {
		_, err := s.store.Create(ctx, &models.User{Username: "alice", Code: "OTHER456"})
		s.Require().ErrorIs(err, store.ErrUsernameTaken)
	})

	s.Run("duplicate code", func() {
		_, err := s.store.Create(ctx, &models.User{Username: "bob", Code: "ALICE123"})
		s.Require().ErrorIs(err, store.ErrCodeTaken)
	})
}

func (s *PostgresStoreSuite) TestReferralIdempotence() {
	ctx := context.Background()
	ref, err := s.store.Create(ctx, &models.User{Username: "ref", Code: "REF00001"})
	s.Require().NoError(err)
	friend, err := s.store.Create(ctx, &models.User{Username: "friend", Code: "FRIEND01"})
	s.Require().NoError(err)

	inserted, err := s.store.Record(ctx, ref.ID, friend.ID, time.Now().UTC())
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = s.store.Record(ctx, ref.ID, friend.ID, time.Now().UTC())
	s.Require().NoError(err)
	s.False(inserted)

	referred, err := s.store.ListReferred(ctx, ref.ID)
	s.Require().NoError(err)
	s.Require().Len(referred, 1)
	s.Equal("friend", referred[0].Username)
}

func (s *PostgresStoreSuite) TestSelfReferralRejectedBySchema() {
	ctx := context.Background()
	u, err := s.store.Create(ctx, &models.User{Username: "loner", Code: "LONER001"})
	s.Require().NoError(err)

	_, err = s.postgres.DB.ExecContext(ctx,
		`UPDATE ref_users SET referred_by_user_id = $1 WHERE id = $1`, u.ID)
	s.Require().Error(err)
}

func (s *PostgresStoreSuite) TestClaimRollbackReleasesAccount() {
	ctx := context.Background()
	s.Require().NoError(s.store.AddReserved(ctx, "vip_1", "USD", ""))

	err := s.inTx(ctx, func(txCtx context.Context) error {
		acct, err := s.store.ClaimOldest(txCtx, "")
		s.Require().NoError(err)
		s.Equal("vip_1", acct.Username)
		return errors.New("force rollback")
	})
	s.Require().Error(err)

	// The rolled-back claim must not leave the account locked or assigned.
	acct, err := s.store.ClaimOldest(ctx, "")
	s.Require().NoError(err)
	s.Equal("vip_1", acct.Username)
}

// TestConcurrentPoolClaim verifies that racing signup transactions each claim
// a distinct reserved account and the rest see exhaustion.
func (s *PostgresStoreSuite) TestConcurrentPoolClaim() {
	ctx := context.Background()
	const poolSize = 3
	const claimants = 10

	for i := 0; i < poolSize; i++ {
		s.Require().NoError(s.store.AddReserved(ctx, fmt.Sprintf("vip_%d", i), "USD", ""))
	}

	var wg sync.WaitGroup
	var successCount, exhaustedCount atomic.Int32
	claimed := make(chan string, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := s.inTx(ctx, func(txCtx context.Context) error {
				acct, err := s.store.ClaimOldest(txCtx, "")
				if err != nil {
					return err
				}
				user, err := s.store.Create(txCtx, &models.User{
					Username: acct.Username,
					Code:     fmt.Sprintf("CLAIM%03d", n),
				})
				if err != nil {
					return err
				}
				if err := s.store.MarkAssigned(txCtx, acct.Username, user.ID, time.Now().UTC()); err != nil {
					return err
				}
				claimed <- acct.Username
				return nil
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrExhausted):
				exhaustedCount.Add(1)
			default:
				s.T().Errorf("unexpected claim error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(claimed)

	s.Equal(int32(poolSize), successCount.Load(), "every pool account should be claimed exactly once")
	s.Equal(int32(claimants-poolSize), exhaustedCount.Load())

	seen := make(map[string]bool)
	for username := range claimed {
		s.False(seen[username], "account %s claimed twice", username)
		seen[username] = true
	}

	var unassigned int
	err := s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reserved_accounts WHERE NOT is_assigned`).Scan(&unassigned)
	s.Require().NoError(err)
	s.Zero(unassigned)
}

func (s *PostgresStoreSuite) TestSearchIsCaseInsensitive() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, &models.User{Username: "CamelCase", Code: "CAMEL001", Phone: "+15550001111"})
	s.Require().NoError(err)

	users, err := s.store.Search(ctx, "camelca", 10)
	s.Require().NoError(err)
	s.Require().Len(users, 1)

	users, err = s.store.Search(ctx, "5550001", 10)
	s.Require().NoError(err)
	s.Len(users, 1)
}

func (s *PostgresStoreSuite) TestUpdateProfileMissingUser() {
	err := s.store.UpdateProfile(context.Background(), 99999, models.ProfileFields{FirstName: "Ghost"})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
