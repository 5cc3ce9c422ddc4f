// Package auth resolves inbound credentials to an account id and tier.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"docmind/internal/config"
	"docmind/internal/models"
)

var (
	// ErrUnauthenticated means no resolver accepted the credential.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Account is the resolved caller identity.
type Account struct {
	ID   string
	Tier models.Tier
}

// Resolver turns a bearer credential into an Account.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Account, error)
}

// Claims is the token payload: the subject is the account id.
type Claims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
}

func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

func (r *JWTResolver) Resolve(_ context.Context, credential string) (Account, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Account{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	tier := models.Tier(claims.Tier)
	if claims.Tier == "" {
		tier = models.TierFree
	}
	if !tier.Valid() {
		return Account{}, fmt.Errorf("%w: unknown tier %q", ErrUnauthenticated, claims.Tier)
	}
	return Account{ID: claims.Subject, Tier: tier}, nil
}

// Sign issues a token for account; used by the CLI and tests.
func (r *JWTResolver) Sign(account Account, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = account.ID
	if r.issuer != "" {
		claims.Issuer = r.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Tier: string(account.Tier), RegisteredClaims: claims})
	return token.SignedString(r.secret)
}

// APIKeyResolver maps static keys to accounts.
type APIKeyResolver struct {
	keys map[string]Account
}

func NewAPIKeyResolver(keys map[string]config.APIKeyConfig) *APIKeyResolver {
	m := make(map[string]Account, len(keys))
	for k, v := range keys {
		m[k] = Account{ID: v.Account, Tier: models.Tier(v.Tier)}
	}
	return &APIKeyResolver{keys: m}
}

func (r *APIKeyResolver) Resolve(_ context.Context, credential string) (Account, error) {
	for key, account := range r.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(credential)) == 1 {
			return account, nil
		}
	}
	return Account{}, ErrUnauthenticated
}

// Chain tries each resolver in order and returns the first success.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, credential string) (Account, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Account{}, fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}
	err := ErrUnauthenticated
	for _, r := range c {
		account, rerr := r.Resolve(ctx, credential)
		if rerr == nil {
			return account, nil
		}
		err = rerr
	}
	return Account{}, err
}

// FromConfig builds the resolver chain: static keys first, then JWT when a
// secret is configured.
func FromConfig(cfg config.AuthConfig) Resolver {
	var chain Chain
	if len(cfg.APIKeys) > 0 {
		chain = append(chain, NewAPIKeyResolver(cfg.APIKeys))
	}
	if cfg.JWTSecret != "" {
		chain = append(chain, NewJWTResolver(cfg.JWTSecret, cfg.Issuer))
	}
	return chain
}
