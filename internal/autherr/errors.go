// Package autherr defines the failure kinds the authentication core can
// produce. Callers branch on these with errors.Is; the HTTP layer owns the
// mapping to status codes and redirect error codes.
package autherr

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two are never distinguished in any response.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredOrUnknownState is returned for a state value that was never
	// issued, was already consumed, or is past its expiry.
	ErrExpiredOrUnknownState = errors.New("expired or unknown state")

	// ErrCodeInvalid is returned for an authorization code that is unknown,
	// expired, already redeemed, or whose PKCE verifier does not match.
	ErrCodeInvalid = errors.New("authorization code invalid")

	// ErrExchangeFailed wraps provider token-endpoint failures: network
	// errors, non-2xx responses and responses missing required tokens.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrIDTokenValidationFailed covers signature, issuer, audience, expiry
	// and nonce mismatches. Detail is logged server-side only.
	ErrIDTokenValidationFailed = errors.New("id token validation failed")

	// ErrReuseDetected signals redemption of an already-rotated refresh
	// token. The whole token family is revoked when this is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrTokenExpired and ErrInvalidToken are distinct so clients can retry
	// with a refresh on the former and force re-login on the latter.
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")

	// ErrBlacklisted is returned for an access token whose jti has been
	// explicitly revoked before its natural expiry.
	ErrBlacklisted = errors.New("token blacklisted")

	// ErrRateLimited and ErrSuspiciousOrigin are guard rejections. Responses
	// carry no more detail than a generic backoff hint.
	ErrRateLimited      = errors.New("rate limited")
	ErrSuspiciousOrigin = errors.New("unauthorized origin")

	// ErrUnauthorized is the generic request-time rejection.
	ErrUnauthorized = errors.New("unauthorized")
)
