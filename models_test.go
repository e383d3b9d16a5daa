package flows_test

import (
	"testing"
	"time"

	flows "github.com/goliatone/go-account-flows"
	"github.com/stretchr/testify/assert"
)

func TestAccountEnsureStatus(t *testing.T) {
	account := &flows.Account{}
	account.EnsureStatus()
	assert.Equal(t, flows.AccountStatusInactive, account.Status)
	assert.False(t, account.IsActive())

	account.Status = flows.AccountStatusPending
	account.EnsureStatus()
	assert.Equal(t, flows.AccountStatusPending, account.Status)
	assert.False(t, account.IsActive())

	account.Status = flows.AccountStatusActive
	assert.True(t, account.IsActive())
}

func TestNonceRecordSpendable(t *testing.T) {
	now := time.Now()
	record := &flows.NonceRecord{
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}

	assert.True(t, record.Spendable(now))
	assert.True(t, record.Spendable(now.Add(time.Hour-time.Second)))

	// expiry is exclusive
	assert.False(t, record.Spendable(now.Add(time.Hour)))

	consumed := now.Add(time.Minute)
	record.ConsumedAt = &consumed
	assert.False(t, record.Spendable(now))
}
