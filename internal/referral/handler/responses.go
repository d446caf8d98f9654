package handler

import (
	"time"

	"refhub/internal/referral/models"
)

// SignupResponse is the HTTP response for POST /signup.
type SignupResponse struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	ReferralCode string    `json:"referral_code"`
	FromPool     bool      `json:"from_pool"`
	PoolCurrency string    `json:"pool_currency,omitempty"`
	ReferrerID   *int64    `json:"referrer_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FromResult converts a completed signup to its HTTP response.
func FromResult(result *models.SignupResult) *SignupResponse {
	return &SignupResponse{
		ID:           result.User.ID,
		Username:     result.User.Username,
		ReferralCode: result.User.Code,
		FromPool:     result.FromPool,
		PoolCurrency: result.PoolCurrency,
		ReferrerID:   result.ReferrerID,
		CreatedAt:    result.User.CreatedAt,
	}
}

// SearchResponse is the HTTP response for GET /search.
type SearchResponse struct {
	Results []*models.UserView `json:"results"`
	Count   int                `json:"count"`
}
