package handler

import (
	"strings"

	"refhub/internal/referral/models"
	dErrors "refhub/pkg/domain-errors"
)

const (
	maxUsernameLen = 64
	maxNameLen     = 128
	maxPhoneLen    = 32
	maxBulkEntries = 1000
)

// SignupRequest is the HTTP request body for POST /signup.
type SignupRequest struct {
	Username          string `json:"username"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Phone             string `json:"phone"`
	MessagingID       string `json:"messaging_id"`
	ReferralCode      string `json:"referral_code"`
	ReferralUsername  string `json:"referral_username"`
	AutoAssign        bool   `json:"auto_assign"`
	PreferredCurrency string `json:"preferred_currency"`
}

// Validate normalizes and bounds-checks the signup body. The engine enforces
// the username-or-auto-assign rule itself; this only rejects oversized input.
func (r *SignupRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Username = strings.TrimSpace(r.Username)
	r.ReferralCode = strings.TrimSpace(r.ReferralCode)
	r.ReferralUsername = strings.TrimSpace(r.ReferralUsername)
	r.PreferredCurrency = strings.ToUpper(strings.TrimSpace(r.PreferredCurrency))

	if len(r.Username) > maxUsernameLen {
		return dErrors.New(dErrors.CodeBadRequest, "username must be at most 64 characters")
	}
	if len(r.FirstName) > maxNameLen || len(r.LastName) > maxNameLen {
		return dErrors.New(dErrors.CodeBadRequest, "name must be at most 128 characters")
	}
	if len(r.Phone) > maxPhoneLen {
		return dErrors.New(dErrors.CodeBadRequest, "phone must be at most 32 characters")
	}
	return nil
}

// Model maps the body onto the engine's intake record.
func (r *SignupRequest) Model() models.SignupRequest {
	return models.SignupRequest{
		Username:          r.Username,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Phone:             r.Phone,
		MessagingID:       r.MessagingID,
		ReferralCode:      r.ReferralCode,
		ReferralUsername:  r.ReferralUsername,
		AutoAssign:        r.AutoAssign,
		PreferredCurrency: r.PreferredCurrency,
	}
}

// UpdateProfileRequest is the HTTP request body for PATCH /users/{identifier}.
type UpdateProfileRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	MessagingID string `json:"messaging_id"`
}

func (r *UpdateProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.FirstName) > maxNameLen || len(r.LastName) > maxNameLen {
		return dErrors.New(dErrors.CodeBadRequest, "name must be at most 128 characters")
	}
	if len(r.Phone) > maxPhoneLen {
		return dErrors.New(dErrors.CodeBadRequest, "phone must be at most 32 characters")
	}
	return nil
}

// Fields maps the body onto the mutable profile fields.
func (r *UpdateProfileRequest) Fields() models.ProfileFields {
	return models.ProfileFields{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Phone:       r.Phone,
		MessagingID: r.MessagingID,
	}
}

// BulkRequest is the HTTP request body for POST /admin/bulk.
type BulkRequest struct {
	Usernames []string `json:"usernames"`
}

func (r *BulkRequest) Validate() error {
	if r == nil || len(r.Usernames) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "usernames is required")
	}
	if len(r.Usernames) > maxBulkEntries {
		return dErrors.New(dErrors.CodeBadRequest, "at most 1000 usernames per request")
	}
	return nil
}
