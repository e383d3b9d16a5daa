package flows_test

import (
	"testing"

	flows "github.com/goliatone/go-account-flows"
	"github.com/stretchr/testify/assert"
)

func TestTokenBindingRoundTrip(t *testing.T) {
	session := flows.NewMemorySessionStore()
	binding := flows.NewTokenBinding(session)

	assert.False(t, binding.Matches("tok-1"))

	binding.Bind("tok-1", "acct-1")
	assert.True(t, binding.Matches("tok-1"))
	assert.False(t, binding.Matches("tok-2"))

	token, accountID, ok := binding.Resolve()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "acct-1", accountID)
}

func TestTokenBindingClear(t *testing.T) {
	session := flows.NewMemorySessionStore()
	binding := flows.NewTokenBinding(session)

	binding.Bind("tok-1", "acct-1")
	binding.Clear()

	assert.False(t, binding.Matches("tok-1"))
	_, _, ok := binding.Resolve()
	assert.False(t, ok)
}

func TestTokenBindingSurvivesAcrossInstances(t *testing.T) {
	session := flows.NewMemorySessionStore()

	flows.NewTokenBinding(session).Bind("tok-1", "acct-1")

	// a later request sees the binding through the same session store
	later := flows.NewTokenBinding(session)
	assert.True(t, later.Matches("tok-1"))

	accountID, ok := later.ResolveAccountID()
	assert.True(t, ok)
	assert.Equal(t, "acct-1", accountID)
}

func TestTokenBindingSpentAttestation(t *testing.T) {
	session := flows.NewMemorySessionStore()
	binding := flows.NewTokenBinding(session)

	// an introspect-only binding never resolves as spent
	binding.Bind("tok-1", "acct-1")
	_, _, ok := binding.ResolveSpent()
	assert.False(t, ok)

	binding.BindSpent("tok-1", "acct-1")
	token, accountID, ok := binding.ResolveSpent()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "acct-1", accountID)
	assert.True(t, binding.Matches("tok-1"))

	// re-binding afresh drops the attestation
	binding.Bind("tok-2", "acct-1")
	_, _, ok = binding.ResolveSpent()
	assert.False(t, ok)
}

func TestTokenBindingEmptyToken(t *testing.T) {
	session := flows.NewMemorySessionStore()
	binding := flows.NewTokenBinding(session)

	assert.False(t, binding.Matches(""))

	binding.Bind("tok-1", "acct-1")
	assert.False(t, binding.Matches(""))
}
