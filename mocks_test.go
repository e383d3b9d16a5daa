package flows_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	flows "github.com/goliatone/go-account-flows"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

func newTestConfig() flows.SimpleConfig {
	return flows.SimpleConfig{
		SigningKey:         testSigningKey,
		Issuer:             "flows-test",
		Audience:           []string{"flows-test-aud"},
		BaseURL:            "https://idp.example.com",
		ActivationTokenTTL: 24 * time.Hour,
		RecoveryTokenTTL:   20 * time.Minute,
	}
}

// memoryNonceStore is an in process NonceStore with the same claim semantics
// as the bun repository: a claim only wins against an unconsumed, unexpired
// record.
type memoryNonceStore struct {
	mu      sync.Mutex
	records map[string]*flows.NonceRecord
}

func newMemoryNonceStore() *memoryNonceStore {
	return &memoryNonceStore{records: map[string]*flows.NonceRecord{}}
}

func (s *memoryNonceStore) Create(_ context.Context, record *flows.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *memoryNonceStore) Get(_ context.Context, id string) (*flows.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, flows.ErrInvalidToken
	}
	clone := *record
	return &clone, nil
}

func (s *memoryNonceStore) Claim(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.ConsumedAt != nil || !at.Before(record.ExpiresAt) {
		return false, nil
	}
	consumed := at
	record.ConsumedAt = &consumed
	return true, nil
}

func (s *memoryNonceStore) Unclaim(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok {
		record.ConsumedAt = nil
	}
	return nil
}

// countingIssuer wraps a real issuer and counts calls, so tests can assert
// that a refresh re-authorizes from the session binding instead of the
// issuer.
type countingIssuer struct {
	flows.NonceTokenIssuer
	introspects int
	consumes    int
	releases    int
}

func (c *countingIssuer) Introspect(ctx context.Context, token string, purpose flows.TokenPurpose) (*flows.NonceClaims, error) {
	c.introspects++
	return c.NonceTokenIssuer.Introspect(ctx, token, purpose)
}

func (c *countingIssuer) Consume(ctx context.Context, token string, purpose flows.TokenPurpose) (*flows.NonceClaims, error) {
	c.consumes++
	return c.NonceTokenIssuer.Consume(ctx, token, purpose)
}

func (c *countingIssuer) Release(ctx context.Context, token string) error {
	c.releases++
	return c.NonceTokenIssuer.Release(ctx, token)
}

// fakeAccounts is an in memory Accounts double. The embedded interface
// covers the repository surface the tests never touch.
type fakeAccounts struct {
	flows.Accounts
	mu      sync.Mutex
	byID    map[string]*flows.Account
	resets  int
	lastPwd string
}

func newFakeAccounts(accounts ...*flows.Account) *fakeAccounts {
	f := &fakeAccounts{byID: map[string]*flows.Account{}}
	for _, a := range accounts {
		f.put(a)
	}
	return f
}

func (f *fakeAccounts) put(a *flows.Account) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.EnsureStatus()
	f.byID[a.ID.String()] = a
}

func (f *fakeAccounts) FindByUsername(_ context.Context, username string) (*flows.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, flows.ErrAccountNotFound
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (*flows.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, flows.ErrAccountNotFound
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (*flows.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		return a, nil
	}
	return nil, flows.ErrAccountNotFound
}

func (f *fakeAccounts) CreateAccount(_ context.Context, account *flows.Account) (*flows.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(account)
	return account, nil
}

func (f *fakeAccounts) CreateTx(ctx context.Context, _ bun.IDB, account *flows.Account, _ ...repository.InsertCriteria) (*flows.Account, error) {
	return f.CreateAccount(ctx, account)
}

func (f *fakeAccounts) Activate(_ context.Context, accountID string) (*flows.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return nil, flows.ErrAccountNotFound
	}
	now := time.Now()
	a.Status = flows.AccountStatusActive
	a.ActivatedAt = &now
	return a, nil
}

func (f *fakeAccounts) MarkCredentialSet(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return flows.ErrAccountNotFound
	}
	a.CredentialSet = true
	return nil
}

func (f *fakeAccounts) ResetPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id.String()]
	if !ok {
		return flows.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	f.resets++
	f.lastPwd = passwordHash
	return nil
}

// fakeRepo wires the fakes behind the RepositoryManager interface.
type fakeRepo struct {
	accounts *fakeAccounts
	nonces   flows.NonceStore
}

func newFakeRepo(accounts *fakeAccounts) *fakeRepo {
	return &fakeRepo{accounts: accounts, nonces: newMemoryNonceStore()}
}

func (r *fakeRepo) Accounts() flows.Accounts { return r.accounts }
func (r *fakeRepo) Nonces() flows.NonceStore { return r.nonces }
func (r *fakeRepo) Validate() error { return nil }
func (r *fakeRepo) MustValidate()   {}

func (r *fakeRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

// recordingNotifier captures every dispatch for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []recordedSend
}

type recordedSend struct {
	Destination string
	TemplateID  string
	Data        map[string]any
}

func (n *recordingNotifier) Send(_ context.Context, destination, templateID string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, recordedSend{
		Destination: destination,
		TemplateID:  templateID,
		Data:        data,
	})
	return nil
}

func (n *recordingNotifier) all() []recordedSend {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]recordedSend, len(n.sends))
	copy(out, n.sends)
	return out
}
