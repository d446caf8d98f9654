// Package screen checks candidate signups against the blacklist. Values are
// normalized before comparison so casing and spacing cannot be used to slip
// past an entry.
package screen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"refhub/internal/referral/models"
	"refhub/internal/referral/store"
	"refhub/pkg/platform/sentinel"
)

// Candidate carries the signup attributes subject to screening.
type Candidate struct {
	FirstName        string
	LastName         string
	Phone            string
	MessagingID      string
	ReferralCode     string
	ReferralUsername string
}

// Screener resolves candidates against active blacklist entries.
type Screener struct {
	store store.BlacklistStore
}

// New constructs a Screener over the given blacklist store.
func New(s store.BlacklistStore) *Screener {
	return &Screener{store: s}
}

// Normalize trims, collapses internal whitespace, and lowercases a value.
// Blacklist entries are stored normalized; candidates are normalized before
// lookup so both sides compare canonically.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Screen returns the block reason and true when any attribute matches an
// active blacklist entry. Checks run in a fixed order, phone and messaging id
// before the forgeable name fields, so the reported reason names the
// hardest-to-forge match. Absent attributes are skipped.
func (s *Screener) Screen(ctx context.Context, c Candidate) (string, bool, error) {
	checks := []struct {
		kind  models.BlacklistKind
		value string
	}{
		{models.KindPhone, Normalize(c.Phone)},
		{models.KindMessagingID, Normalize(c.MessagingID)},
		{models.KindReferralCode, Normalize(c.ReferralCode)},
		{models.KindReferralUsername, Normalize(c.ReferralUsername)},
		{models.KindName, Normalize(c.FirstName + " " + c.LastName)},
	}

	for _, check := range checks {
		if check.value == "" {
			continue
		}
		entry, err := s.store.FindActive(ctx, check.kind, check.value)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return "", false, fmt.Errorf("screen %s: %w", check.kind, err)
		}
		reason := entry.Reason
		if reason == "" {
			reason = fmt.Sprintf("blocked by blacklist: %s", check.kind)
		}
		return reason, true, nil
	}
	return "", false, nil
}
