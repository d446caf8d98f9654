package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"refhub/internal/referral/models"
	"refhub/pkg/platform/sentinel"
)

type edgeKey struct {
	referrer int64
	referred int64
}

// Memory implements Store in process memory. It backs unit tests and local
// development; the coarse transaction wrapper in the service package provides
// snapshot-based rollback.
type Memory struct {
	mu sync.RWMutex

	nextUserID int64
	users      map[int64]*models.User
	byUsername map[string]int64
	byCode     map[string]int64

	edges map[edgeKey]time.Time

	nextAcctID int64
	accounts   []*models.ReservedAccount

	blacklist []*models.BlacklistEntry
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[int64]*models.User),
		byUsername: make(map[string]int64),
		byCode:     make(map[string]int64),
		edges:      make(map[edgeKey]time.Time),
	}
}

func (s *Memory) Create(_ context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[u.Username]; taken {
		return nil, ErrUsernameTaken
	}
	if _, taken := s.byCode[u.Code]; taken {
		return nil, ErrCodeTaken
	}

	s.nextUserID++
	created := *u
	created.ID = s.nextUserID
	created.CreatedAt = time.Now().UTC()

	s.users[created.ID] = &created
	s.byUsername[created.Username] = created.ID
	s.byCode[created.Code] = created.ID
	return cloneUser(&created), nil
}

func (s *Memory) FindByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Memory) FindByCode(_ context.Context, refCode string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[refCode]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Memory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Memory) UpdateProfile(_ context.Context, id int64, fields models.ProfileFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.FirstName = fields.FirstName
	u.LastName = fields.LastName
	u.Phone = fields.Phone
	u.MessagingID = fields.MessagingID
	return nil
}

func (s *Memory) Search(_ context.Context, query string, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matches []*models.User
	for _, u := range s.users {
		if userMatches(u, needle) {
			matches = append(matches, cloneUser(u))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func userMatches(u *models.User, needle string) bool {
	for _, field := range []string{u.Username, u.Code, u.FirstName, u.LastName, u.Phone, u.MessagingID} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (s *Memory) Record(_ context.Context, referrerID, referredID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := edgeKey{referrer: referrerID, referred: referredID}
	if _, exists := s.edges[key]; exists {
		return false, nil
	}
	s.edges[key] = at
	return true, nil
}

func (s *Memory) ListReferred(_ context.Context, referrerID int64) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var referred []*models.User
	for key := range s.edges {
		if key.referrer != referrerID {
			continue
		}
		if u, ok := s.users[key.referred]; ok {
			referred = append(referred, cloneUser(u))
		}
	}
	sort.Slice(referred, func(i, j int) bool { return referred[i].ID > referred[j].ID })
	return referred, nil
}

func (s *Memory) ClaimOldest(_ context.Context, currency string) (*models.ReservedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if currency != "" {
		for _, acct := range s.accounts {
			if !acct.Assigned && acct.Currency == currency {
				return cloneAccount(acct), nil
			}
		}
	}
	for _, acct := range s.accounts {
		if !acct.Assigned {
			return cloneAccount(acct), nil
		}
	}
	return nil, sentinel.ErrExhausted
}

func (s *Memory) MarkAssigned(_ context.Context, username string, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.Username != username {
			continue
		}
		if acct.Assigned {
			return sentinel.ErrAlreadyUsed
		}
		acct.Assigned = true
		uid := userID
		acct.AssignedUserID = &uid
		assignedAt := at
		acct.AssignedAt = &assignedAt
		return nil
	}
	return sentinel.ErrNotFound
}

func (s *Memory) FindActive(_ context.Context, kind models.BlacklistKind, value string) (*models.BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.blacklist {
		if e.Active && e.Kind == kind && e.Value == value {
			entry := *e
			return &entry, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// AddReserved provisions a pool entry, preserving insertion order.
func (s *Memory) AddReserved(_ context.Context, username, currency, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAcctID++
	s.accounts = append(s.accounts, &models.ReservedAccount{
		ID:       s.nextAcctID,
		Username: username,
		Currency: currency,
		Notes:    notes,
	})
	return nil
}

// AddBlacklist provisions a blacklist entry with an already-normalized value.
func (s *Memory) AddBlacklist(_ context.Context, kind models.BlacklistKind, value, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist = append(s.blacklist, &models.BlacklistEntry{
		ID:        int64(len(s.blacklist) + 1),
		Kind:      kind,
		Value:     value,
		Reason:    reason,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Snapshot captures the full store state for transactional rollback.
func (s *Memory) Snapshot() *Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := NewMemory()
	snap.nextUserID = s.nextUserID
	snap.nextAcctID = s.nextAcctID
	for id, u := range s.users {
		snap.users[id] = cloneUser(u)
	}
	for username, id := range s.byUsername {
		snap.byUsername[username] = id
	}
	for refCode, id := range s.byCode {
		snap.byCode[refCode] = id
	}
	for key, at := range s.edges {
		snap.edges[key] = at
	}
	for _, acct := range s.accounts {
		snap.accounts = append(snap.accounts, cloneAccount(acct))
	}
	for _, e := range s.blacklist {
		entry := *e
		snap.blacklist = append(snap.blacklist, &entry)
	}
	return snap
}

// Restore replaces the store state with a previously captured snapshot.
func (s *Memory) Restore(snap *Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID = snap.nextUserID
	s.nextAcctID = snap.nextAcctID
	s.users = snap.users
	s.byUsername = snap.byUsername
	s.byCode = snap.byCode
	s.edges = snap.edges
	s.accounts = snap.accounts
	s.blacklist = snap.blacklist
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.ReferredByID != nil {
		id := *u.ReferredByID
		c.ReferredByID = &id
	}
	return &c
}

func cloneAccount(a *models.ReservedAccount) *models.ReservedAccount {
	c := *a
	if a.AssignedUserID != nil {
		id := *a.AssignedUserID
		c.AssignedUserID = &id
	}
	if a.AssignedAt != nil {
		at := *a.AssignedAt
		c.AssignedAt = &at
	}
	return &c
}
