// Package passport verifies Immutable Passport ID tokens.
package passport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	dErrors "mintgate/pkg/domain-errors"
)

// DefaultJWKSURL is Immutable's published signing key set.
const DefaultJWKSURL = "https://auth.immutable.com/.well-known/jwks.json"

// Claims is the subset of the ID token the gate relies on.
type Claims struct {
	Passport struct {
		ZkEVMEthAddress string `json:"zkevm_eth_address"`
	} `json:"passport"`
	jwt.RegisteredClaims
}

// Verifier checks RS256 ID tokens against a key set.
type Verifier struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience string
}

type Option func(*Verifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) Option {
	return func(v *Verifier) {
		v.audience = audience
	}
}

// NewVerifier builds a verifier over an arbitrary key function.
func NewVerifier(kf jwt.Keyfunc, opts ...Option) *Verifier {
	v := &Verifier{keyfunc: kf}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewFromJWKS fetches the key set at url and keeps it refreshed in the
// background until ctx is cancelled.
func NewFromJWKS(ctx context.Context, url string, opts ...Option) (*Verifier, error) {
	if url == "" {
		url = DefaultJWKSURL
	}
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("load passport jwks: %w", err)
	}
	return NewVerifier(k.Keyfunc, opts...), nil
}

// VerifyIDToken validates the token and returns the lower-cased zkEVM wallet
// address it was issued for.
func (v *Verifier) VerifyIDToken(_ context.Context, token string) (string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	wallet := strings.TrimSpace(claims.Passport.ZkEVMEthAddress)
	if !common.IsHexAddress(wallet) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token carries no zkEVM wallet address")
	}
	return strings.ToLower(wallet), nil
}
