package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupRequestValidate(t *testing.T) {
	t.Run("trims and uppercases fields", func(t *testing.T) {
		req := &SignupRequest{
			Username:          "  alice  ",
			ReferralCode:      " ref123 ",
			PreferredCurrency: " usd ",
		}
		require.NoError(t, req.Validate())
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, "ref123", req.ReferralCode)
		assert.Equal(t, "USD", req.PreferredCurrency)
	})

	t.Run("rejects oversized fields", func(t *testing.T) {
		assert.Error(t, (&SignupRequest{Username: strings.Repeat("x", 65)}).Validate())
		assert.Error(t, (&SignupRequest{Username: "ok", FirstName: strings.Repeat("x", 129)}).Validate())
		assert.Error(t, (&SignupRequest{Username: "ok", Phone: strings.Repeat("1", 33)}).Validate())
	})

	t.Run("allows empty username for pool assignment", func(t *testing.T) {
		assert.NoError(t, (&SignupRequest{AutoAssign: true}).Validate())
	})
}

func TestBulkRequestValidate(t *testing.T) {
	assert.Error(t, (&BulkRequest{}).Validate())
	assert.Error(t, (&BulkRequest{Usernames: make([]string, 1001)}).Validate())
	assert.NoError(t, (&BulkRequest{Usernames: []string{"alice"}}).Validate())
}
