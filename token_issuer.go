package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// NonceStore persists the single use bookkeeping for issued nonce tokens.
// Claim must be atomic: of two racers claiming the same id, exactly one wins.
type NonceStore interface {
	Create(ctx context.Context, record *NonceRecord) error
	Get(ctx context.Context, id string) (*NonceRecord, error)
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	Unclaim(ctx context.Context, id string) error
}

// TokenIssuerImpl implements the NonceTokenIssuer interface backed by HS256
// signed tokens plus a NonceStore row per token.
type TokenIssuerImpl struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	nonces     NonceStore
	now        func() time.Time
	logger     Logger
}

// TokenIssuerOption customizes issuer construction.
type TokenIssuerOption func(*TokenIssuerImpl)

// WithIssuerClock injects a custom clock (useful for tests).
func WithIssuerClock(clock func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuerImpl) {
		if clock != nil {
			ti.now = clock
		}
	}
}

// WithIssuerLogger overrides the logger used by the issuer.
func WithIssuerLogger(logger Logger) TokenIssuerOption {
	return func(ti *TokenIssuerImpl) {
		if logger != nil {
			ti.logger = logger
		}
	}
}

// NewTokenIssuer creates a new NonceTokenIssuer instance
func NewTokenIssuer(signingKey []byte, issuer string, audience jwt.ClaimStrings, nonces NonceStore, opts ...TokenIssuerOption) *TokenIssuerImpl {
	ti := &TokenIssuerImpl{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		nonces:     nonces,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}

	return ti
}

// Issue signs a nonce token for the given claims and persists its backing
// record. The claims must carry a purpose and an account id; issued at,
// expiry, and jti are filled here.
func (ti *TokenIssuerImpl) Issue(ctx context.Context, claims *NonceClaims, ttl time.Duration) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}
	if claims.Purpose == "" {
		return "", errors.New("nonce claims require a purpose", errors.CategoryBadInput)
	}
	if ttl <= 0 {
		return "", errors.New("nonce TTL must be positive", errors.CategoryBadInput)
	}

	now := ti.now()
	claims.RegisteredClaims.Issuer = ti.issuer
	claims.RegisteredClaims.Audience = ti.audience
	claims.RegisteredClaims.Subject = claims.AccountID
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	ensureTokenID(&claims.RegisteredClaims)

	record := &NonceRecord{
		ID:        claims.TokenID(),
		AccountID: claims.AccountID,
		Purpose:   claims.Purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if err := ti.nonces.Create(ctx, record); err != nil {
		ti.logger.Warn("nonce store unavailable during issuance: %v", err)
		return "", errors.Wrap(err, ErrTokenIssuance.Category, ErrTokenIssuance.Message).
			WithTextCode(ErrTokenIssuance.TextCode)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", errors.Wrap(err, ErrTokenIssuance.Category, ErrTokenIssuance.Message).
			WithTextCode(ErrTokenIssuance.TextCode)
	}

	return signed, nil
}

// Introspect validates a token without consuming it. Every failure mode,
// expired, tampered, unknown, already consumed, or issued for another
// purpose, collapses into ErrInvalidToken.
func (ti *TokenIssuerImpl) Introspect(ctx context.Context, token string, purpose TokenPurpose) (*NonceClaims, error) {
	claims, err := ti.parse(token, purpose)
	if err != nil {
		return nil, err
	}

	record, err := ti.nonces.Get(ctx, claims.TokenID())
	if err != nil {
		ti.logger.Debug("nonce record lookup failed: %v", err)
		return nil, ErrInvalidToken
	}

	if !record.Spendable(ti.now()) {
		ti.logger.Debug("nonce %s already consumed or expired", record.ID)
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Consume atomically claims the token. Exactly one of two racing callers
// observes success; every other outcome is ErrInvalidToken.
func (ti *TokenIssuerImpl) Consume(ctx context.Context, token string, purpose TokenPurpose) (*NonceClaims, error) {
	claims, err := ti.parse(token, purpose)
	if err != nil {
		return nil, err
	}

	claimed, err := ti.nonces.Claim(ctx, claims.TokenID(), ti.now())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume nonce token")
	}
	if !claimed {
		ti.logger.Debug("nonce %s lost the consumption race or was spent", claims.TokenID())
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Release returns a consumed token to spendable after a guarded action was
// rejected without a state change, so the holder can retry with the same
// link.
func (ti *TokenIssuerImpl) Release(ctx context.Context, token string) error {
	claims, err := ti.parseAnyPurpose(token)
	if err != nil {
		return err
	}

	if err := ti.nonces.Unclaim(ctx, claims.TokenID()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to release nonce token")
	}

	return nil
}

func (ti *TokenIssuerImpl) parse(token string, purpose TokenPurpose) (*NonceClaims, error) {
	claims, err := ti.parseAnyPurpose(token)
	if err != nil {
		return nil, err
	}

	if claims.Purpose != purpose {
		// folded into the opaque outcome so the response carries no oracle
		ti.logger.Debug("nonce purpose mismatch: have %q want %q", claims.Purpose, purpose)
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (ti *TokenIssuerImpl) parseAnyPurpose(token string) (*NonceClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 3)
	parserOptions = append(parserOptions, jwt.WithTimeFunc(ti.now))
	if ti.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ti.issuer))
	}
	if len(ti.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ti.audience...))
	}

	parsed, err := jwt.ParseWithClaims(token, &NonceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ti.logger.Debug("nonce token rejected: %v", err)
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*NonceClaims)
	if !ok || !parsed.Valid || claims.TokenID() == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
