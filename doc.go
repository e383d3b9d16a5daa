// Package flows provides the self service account endpoints an identity
// server puts in front of its account store: login, registration, forgot
// password, forgot account id, and account activation, driven by single use
// nonce tokens.
//
// Nonce tokens:
//   - Tokens are HS256 signed JWTs backed by a NonceRecord row keyed on jti.
//     A purpose claim pins each token to the flow it was issued for, and a
//     conditional UPDATE makes consumption atomic: of two racing requests
//     presenting the same token, exactly one wins.
//   - Every failure mode (expired, tampered, unknown, consumed, wrong
//     purpose) collapses into ErrInvalidToken, so responses never reveal why
//     a token was refused.
//
// Session binding:
//   - When a token first passes introspection it is bound to the session via
//     TokenBinding. Refreshing the landing page re-authorizes from the
//     binding without touching the issuer, and the combined activate and set
//     password flow uses a retained binding to authorize the follow up POST
//     after activation already spent the token.
//
// Enumeration resistance:
//   - The recovery endpoints render the same response whether or not an
//     account matched. The unmatched branch issues a token for a synthetic
//     subject and dispatches it to a blackhole destination, so the two
//     branches share one call pattern.
package flows
