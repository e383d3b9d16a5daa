package flows

import (
	"crypto/subtle"
	"encoding/json"
)

// sessionBindingKey is the single session slot owned by this subsystem.
const sessionBindingKey = "flows:nonce_binding"

// SessionBinding records that a nonce token already passed introspection for
// this session, so a page refresh does not spend the token a second time.
// Exactly one binding exists per session; Bind overwrites the prior one.
// Spent records that a completed guarded action consumed the token; only a
// spent binding can authorize a follow up step without a second consumption.
type SessionBinding struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	Spent     bool   `json:"spent,omitempty"`
}

// TokenBinding exposes the binding operations over a host session store.
type TokenBinding struct {
	session SessionStore
}

// NewTokenBinding wraps the session store for the current request.
func NewTokenBinding(session SessionStore) *TokenBinding {
	return &TokenBinding{session: session}
}

// Bind stores the token/account pair, replacing any prior binding.
func (b *TokenBinding) Bind(token, accountID string) {
	b.put(token, accountID, false)
}

// BindSpent stores the binding with the spent attestation, after a completed
// guarded action consumed the token.
func (b *TokenBinding) BindSpent(token, accountID string) {
	b.put(token, accountID, true)
}

func (b *TokenBinding) put(token, accountID string, spent bool) {
	data, _ := json.Marshal(SessionBinding{Token: token, AccountID: accountID, Spent: spent})
	b.session.Put(sessionBindingKey, string(data))
}

// Matches reports whether a binding exists for exactly this token value.
func (b *TokenBinding) Matches(token string) bool {
	binding, ok := b.load()
	if !ok || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(binding.Token), []byte(token)) == 1
}

// Resolve returns the bound token and account id, if any.
func (b *TokenBinding) Resolve() (token, accountID string, ok bool) {
	binding, ok := b.load()
	if !ok {
		return "", "", false
	}
	return binding.Token, binding.AccountID, true
}

// ResolveSpent returns the binding only when it attests that a completed
// guarded action already consumed the token. A binding created by
// introspection alone never satisfies it.
func (b *TokenBinding) ResolveSpent() (token, accountID string, ok bool) {
	binding, ok := b.load()
	if !ok || !binding.Spent {
		return "", "", false
	}
	return binding.Token, binding.AccountID, true
}

// ResolveAccountID returns the bound account id, if any.
func (b *TokenBinding) ResolveAccountID() (string, bool) {
	_, accountID, ok := b.Resolve()
	return accountID, ok
}

// Clear removes the binding. Call it exactly once, after the guarded state
// change has durably succeeded; never on failure, so a failed attempt can be
// retried without re-introspecting.
func (b *TokenBinding) Clear() {
	b.session.Remove(sessionBindingKey)
}

func (b *TokenBinding) load() (SessionBinding, bool) {
	raw, ok := b.session.Get(sessionBindingKey)
	if !ok || raw == "" {
		return SessionBinding{}, false
	}

	var binding SessionBinding
	if err := json.Unmarshal([]byte(raw), &binding); err != nil {
		return SessionBinding{}, false
	}

	if binding.Token == "" || binding.AccountID == "" {
		return SessionBinding{}, false
	}

	return binding, true
}
