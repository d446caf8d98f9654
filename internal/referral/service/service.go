// Package service orchestrates signups: screening, referrer resolution, pool
// allocation, code assignment, persistence, and ledger updates, all inside
// one transactional boundary from the pool claim onward.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"refhub/internal/platform/metrics"
	"refhub/internal/platform/middleware"
	"refhub/internal/referral/cache"
	"refhub/internal/referral/code"
	"refhub/internal/referral/models"
	"refhub/internal/referral/screen"
	"refhub/internal/referral/store"
	dErrors "refhub/pkg/domain-errors"
	audit "refhub/pkg/platform/audit"
	"refhub/pkg/platform/sentinel"
)

// Service is the referral engine's public surface. Stateless between calls;
// all shared mutable state lives behind the store.
type Service struct {
	stores   store.Store
	screener *screen.Screener
	tx       StoreTx

	auditor audit.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	cache   *cache.Cache
	tracer  trace.Tracer

	codeLength  int
	codeRetries int
	searchLimit int
}

// Option configures optional collaborators.
type Option func(*Service)

// WithAudit wires the audit event store.
func WithAudit(a audit.Store) Option {
	return func(s *Service) { s.auditor = a }
}

// WithMetrics wires Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache wires the read-through user view cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithCodeLength overrides the referral code length.
func WithCodeLength(n int) Option {
	return func(s *Service) { s.codeLength = n }
}

// WithCodeRetries overrides the generate-and-insert retry budget.
func WithCodeRetries(n int) Option {
	return func(s *Service) { s.codeRetries = n }
}

// WithSearchLimit overrides the search result cap.
func WithSearchLimit(n int) Option {
	return func(s *Service) { s.searchLimit = n }
}

// New constructs the engine over the given store and transaction boundary.
func New(stores store.Store, tx StoreTx, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		stores:      stores,
		screener:    screen.New(stores),
		tx:          tx,
		auditor:     audit.Nop{},
		logger:      logger,
		tracer:      otel.Tracer("refhub/referral"),
		codeLength:  code.DefaultLength,
		codeRetries: 5,
		searchLimit: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitSignup runs one onboarding attempt. Screening and referrer resolution
// are read-only and run outside the storage transaction; everything from the
// pool claim through the ledger update shares one transaction, so any late
// failure releases the claimed account and removes the user row.
func (s *Service) SubmitSignup(ctx context.Context, req models.SignupRequest) (*models.SignupResult, error) {
	ctx, span := s.tracer.Start(ctx, "referral.SubmitSignup")
	defer span.End()

	req.Username = strings.TrimSpace(req.Username)
	if !req.AutoAssign && req.Username == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "username is required unless auto-assignment is requested")
	}

	reason, blocked, err := s.screener.Screen(ctx, screen.Candidate{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Phone:            req.Phone,
		MessagingID:      req.MessagingID,
		ReferralCode:     req.ReferralCode,
		ReferralUsername: req.ReferralUsername,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "blacklist screening failed")
	}
	if blocked {
		s.count(func(m *metrics.Metrics) { m.SignupsBlacklisted.Inc() })
		s.emit(ctx, audit.Event{
			Action:   audit.ActionSignupBlocked,
			Username: req.Username,
			Reason:   reason,
		})
		s.logger.InfoContext(ctx, "signup blocked by blacklist",
			"reason", reason,
			"request_id", middleware.GetRequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeBlacklisted, reason)
	}

	referrer := s.resolveReferrer(ctx, req.ReferralCode, req.ReferralUsername)
	span.SetAttributes(attribute.Bool("referral.referrer_resolved", referrer != nil))

	var result *models.SignupResult
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.createUser(txCtx, req, referrer)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil && referrer != nil {
		// The referrer's cached view now misses the new referred user.
		s.cache.Invalidate(ctx, referrer.Code, referrer.Username)
	}

	s.count(func(m *metrics.Metrics) { m.SignupsCompleted.Inc() })
	s.logger.InfoContext(ctx, "signup complete",
		"user_id", result.User.ID,
		"username", result.User.Username,
		"from_pool", result.FromPool,
		"request_id", middleware.GetRequestID(ctx),
	)
	return result, nil
}

// resolveReferrer maps the supplied code or username to an existing user.
// Code wins over username; a miss on both is not an error, since an invalid
// referral must never block a signup.
func (s *Service) resolveReferrer(ctx context.Context, refCode, refUsername string) *models.User {
	if refCode = strings.TrimSpace(refCode); refCode != "" {
		if u, err := s.stores.FindByCode(ctx, refCode); err == nil {
			return u
		}
	}
	if refUsername = strings.TrimSpace(refUsername); refUsername != "" {
		if u, err := s.stores.FindByUsername(ctx, refUsername); err == nil {
			return u
		}
	}
	return nil
}

// createUser executes the transactional tail of a signup: pool claim, code
// assignment, user insert, pool stamping, and edge recording.
func (s *Service) createUser(ctx context.Context, req models.SignupRequest, referrer *models.User) (*models.SignupResult, error) {
	username := req.Username
	fromPool := false
	poolCurrency := ""

	if req.AutoAssign {
		acct, err := s.stores.ClaimOldest(ctx, strings.TrimSpace(req.PreferredCurrency))
		switch {
		case err == nil:
			username = acct.Username
			poolCurrency = acct.Currency
			fromPool = true
		case errors.Is(err, sentinel.ErrExhausted):
			// Exhaustion is fatal only when the caller brought no username
			// of their own.
			if username == "" {
				s.count(func(m *metrics.Metrics) { m.PoolExhausted.Inc() })
				return nil, dErrors.New(dErrors.CodePoolExhausted, "no reserved account available")
			}
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserved account allocation failed")
		}
	}

	var referrerID *int64
	if referrer != nil {
		id := referrer.ID
		referrerID = &id
	}

	user, err := s.insertWithFreshCode(ctx, &models.User{
		Username:     username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		MessagingID:  req.MessagingID,
		ReferredByID: referrerID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if fromPool {
		if err := s.stores.MarkAssigned(ctx, username, user.ID, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reserved account assignment failed")
		}
		s.count(func(m *metrics.Metrics) { m.PoolAssigned.Inc() })
		s.emit(ctx, audit.Event{
			Action:   audit.ActionAccountAssigned,
			UserID:   user.ID,
			Username: username,
			Reason:   "currency=" + poolCurrency,
		})
	}

	if referrer != nil && referrer.ID != user.ID {
		inserted, err := s.stores.Record(ctx, referrer.ID, user.ID, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "referral recording failed")
		}
		if inserted {
			s.count(func(m *metrics.Metrics) { m.ReferralsRecorded.Inc() })
			s.emit(ctx, audit.Event{
				Action:   audit.ActionReferralRecorded,
				UserID:   referrer.ID,
				Username: referrer.Username,
				Reason:   "referred " + user.Username,
			})
		}
	}

	s.emit(ctx, audit.Event{
		Action:   audit.ActionUserCreated,
		UserID:   user.ID,
		Username: user.Username,
	})

	return &models.SignupResult{
		User:         user,
		FromPool:     fromPool,
		ReferrerID:   referrerID,
		PoolCurrency: poolCurrency,
	}, nil
}

// insertWithFreshCode mints a code and inserts the user, retrying on code
// collisions. Collisions are detected at insert time through the uniqueness
// constraint, never pre-checked, to avoid a check-then-act race.
func (s *Service) insertWithFreshCode(ctx context.Context, u *models.User) (*models.User, error) {
	for attempt := 0; attempt < s.codeRetries; attempt++ {
		refCode, err := code.Generate(s.codeLength)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "code generation failed")
		}
		u.Code = refCode

		created, err := s.stores.Create(ctx, u)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrCodeTaken) {
			s.count(func(m *metrics.Metrics) { m.CodeRetries.Inc() })
			continue
		}
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, dErrors.New(dErrors.CodeConflict, "username already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user creation failed")
	}
	return nil, dErrors.New(dErrors.CodeCodeExhausted, "referral code space exhausted after retries")
}

// LookupUser resolves a referral code or username to a full user view.
func (s *Service) LookupUser(ctx context.Context, identifier string) (*models.UserView, error) {
	ctx, span := s.tracer.Start(ctx, "referral.LookupUser")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identifier is required")
	}

	if s.cache != nil {
		if view, ok := s.cache.Get(ctx, identifier); ok {
			span.SetAttributes(attribute.Bool("referral.cache_hit", true))
			return view, nil
		}
	}

	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, view)
	}
	return view, nil
}

func (s *Service) findByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.stores.FindByCode(ctx, identifier)
	if errors.Is(err, sentinel.ErrNotFound) {
		user, err = s.stores.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no user matches that code or username")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "user lookup failed")
	}
	return user, nil
}

func (s *Service) buildView(ctx context.Context, user *models.User) (*models.UserView, error) {
	view := viewOf(user)

	if user.ReferredByID != nil {
		ref, err := s.stores.FindByID(ctx, *user.ReferredByID)
		if err == nil {
			view.ReferredBy = &models.UserSummary{Username: ref.Username, Code: ref.Code}
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "referrer lookup failed")
		}
	}

	referred, err := s.stores.ListReferred(ctx, user.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "referral listing failed")
	}
	for _, r := range referred {
		view.Referred = append(view.Referred, models.UserSummary{Username: r.Username, Code: r.Code})
	}
	return view, nil
}

func viewOf(u *models.User) *models.UserView {
	return &models.UserView{
		ID:          u.ID,
		Username:    u.Username,
		Code:        u.Code,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Phone:       u.Phone,
		MessagingID: u.MessagingID,
		CreatedAt:   u.CreatedAt,
	}
}

// UpdateProfile mutates name, phone, and messaging id for the user matching
// the code or username. Referrer and code are immutable after creation.
func (s *Service) UpdateProfile(ctx context.Context, identifier string, fields models.ProfileFields) (*models.UserView, error) {
	ctx, span := s.tracer.Start(ctx, "referral.UpdateProfile")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identifier is required")
	}

	var updated *models.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.findByIdentifier(txCtx, identifier)
		if err != nil {
			return err
		}
		if err := s.stores.UpdateProfile(txCtx, user.ID, fields); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "profile update failed")
		}
		s.emit(txCtx, audit.Event{
			Action:   audit.ActionProfileUpdated,
			UserID:   user.ID,
			Username: user.Username,
		})
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, updated.Code, updated.Username)
	}

	updated.FirstName = fields.FirstName
	updated.LastName = fields.LastName
	updated.Phone = fields.Phone
	updated.MessagingID = fields.MessagingID
	return s.buildView(ctx, updated)
}

// Search returns users matching the substring across username, code, names,
// phone, and messaging id, most recent first, capped at the configured limit.
func (s *Service) Search(ctx context.Context, query string) ([]*models.UserView, error) {
	ctx, span := s.tracer.Start(ctx, "referral.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	users, err := s.stores.Search(ctx, query, s.searchLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search failed")
	}
	views := make([]*models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, viewOf(u))
	}
	return views, nil
}

// BulkCreate inserts one user per username with a freshly minted code. Each
// entry is attempted independently: a duplicate username skips that entry
// without aborting the batch.
func (s *Service) BulkCreate(ctx context.Context, usernames []string) (*models.BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "referral.BulkCreate")
	defer span.End()

	result := &models.BulkResult{Added: []string{}, Skipped: []string{}}
	for _, raw := range usernames {
		username := strings.TrimSpace(raw)
		if username == "" {
			continue
		}
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			_, err := s.insertWithFreshCode(txCtx, &models.User{Username: username})
			return err
		})
		switch {
		case err == nil:
			result.Added = append(result.Added, username)
		case dErrors.HasCode(err, dErrors.CodeConflict):
			result.Skipped = append(result.Skipped, username)
		default:
			return nil, err
		}
	}

	if len(result.Added) > 0 {
		s.emit(ctx, audit.Event{
			Action: audit.ActionBulkUsersAdded,
			Reason: strings.Join(result.Added, ","),
		})
	}
	return result, nil
}

// emit appends an audit event, enriching it with request context. Appends
// are best-effort: a failure is logged and never fails the operation.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	event.ClientIP = middleware.GetClientIP(ctx)
	event.UserAgent = middleware.GetUserAgent(ctx)
	if err := s.auditor.Append(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit append failed",
			"action", string(event.Action),
			"error", err.Error(),
		)
	}
}

func (s *Service) count(inc func(*metrics.Metrics)) {
	if s.metrics != nil {
		inc(s.metrics)
	}
}
