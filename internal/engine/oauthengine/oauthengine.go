// Package oauthengine implements the OAuth2 Challenge Engine's two
// parallel variants (§4.5). Variant A hands ciphertext straight to the TEE,
// which redeems the provider code from inside the trust boundary. Variant B
// redeems the code itself over plain HTTPS and only asks the TEE to seal the
// resulting composed identity string.
package oauthengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/dauth-gateway/infrastructure/hex"
	"github.com/R3E-Network/dauth-gateway/internal/gatewayerr"
	"github.com/R3E-Network/dauth-gateway/internal/identity"
	"github.com/R3E-Network/dauth-gateway/internal/oauthclient"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
	"github.com/R3E-Network/dauth-gateway/internal/token"
	"github.com/R3E-Network/dauth-gateway/internal/workpool"
)

// Engine drives both OAuth2 variants over an already session-validated
// (Variant A) or bearer-verified (Variant B) request.
type Engine struct {
	bridge        tee.Bridge
	store         identity.Store
	pool          *workpool.Pool
	issuer        *token.Issuer
	redeemer      *oauthclient.Redeemer
	jwtSigningKey string
}

// New builds an Engine. redeemer performs Variant B's host-side token and
// userinfo round trips; jwtSigningKey verifies Variant B's bearer token.
func New(bridge tee.Bridge, store identity.Store, pool *workpool.Pool, issuer *token.Issuer, redeemer *oauthclient.Redeemer, jwtSigningKey string) *Engine {
	return &Engine{
		bridge:        bridge,
		store:         store,
		pool:          pool,
		issuer:        issuer,
		redeemer:      redeemer,
		jwtSigningKey: jwtSigningKey,
	}
}

// AuthOAuth2 is Variant A: the ciphertext OAuth code is redeemed entirely
// inside the TEE, over the trusted identifier named by authType.
func (e *Engine) AuthOAuth2(ctx context.Context, sessionID [tee.SessionIDLen]byte, ciphertext []byte, authType tee.AuthType) ([]byte, error) {
	v, err := e.pool.Submit(ctx, func(ctx context.Context) (any, error) {
		sealed, status, err := e.bridge.AuthOAuth(ctx, sessionID, ciphertext, authType)
		if err != nil {
			return nil, err
		}
		return sealResult{sealed: sealed, status: status}, nil
	})
	if err != nil {
		return nil, gatewayerr.SgxTransportFailure("auth_oauth", err)
	}

	r := v.(sealResult)
	switch r.status {
	case tee.LogicalSuccess:
	case tee.LogicalInvalidAttribute:
		return nil, gatewayerr.OAuthCodeMismatch()
	default:
		return nil, gatewayerr.SgxLogicalFailure("auth oauth failed", nil)
	}

	return e.upsertAndIssue(ctx, r.sealed, authTypeCodeFor(authType))
}

// AuthOAuthVariantB is Variant B: the host verifies the bearer token,
// redeems the authorization code against the provider itself over plain
// HTTPS, and seals the composed "{subject}@{provider}" identifier.
func (e *Engine) AuthOAuthVariantB(ctx context.Context, bearer string, provider oauthclient.Provider, code string) ([]byte, error) {
	if err := e.verifyBearer(bearer); err != nil {
		return nil, err
	}

	subject, err := e.redeemer.Redeem(ctx, provider, code)
	if err != nil {
		return nil, gatewayerr.ProviderFailure(string(provider), err.Error())
	}

	v, err := e.pool.Submit(ctx, func(ctx context.Context) (any, error) {
		sealed, status, err := e.bridge.Seal(ctx, []byte(subject.Composed))
		if err != nil {
			return nil, err
		}
		return sealResult{sealed: sealed, status: status}, nil
	})
	if err != nil {
		return nil, gatewayerr.SgxTransportFailure("seal", err)
	}

	r := v.(sealResult)
	switch r.status {
	case tee.LogicalSuccess:
	case tee.LogicalInvalidAttribute:
		return nil, gatewayerr.InvalidAttribute()
	default:
		return nil, gatewayerr.SgxLogicalFailure("seal failed", nil)
	}

	return e.upsertAndIssue(ctx, r.sealed, authTypeCodeForProvider(provider))
}

// verifyBearer checks the Authorization header's bearer JWT against the
// configured shared signing secret. Absence or invalidity is always
// DataError/invalid token, regardless of which of the two failed.
func (e *Engine) verifyBearer(bearer string) error {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return gatewayerr.InvalidToken(fmt.Errorf("missing bearer token"))
	}
	bearer = strings.TrimPrefix(bearer, "Bearer ")
	bearer = strings.TrimPrefix(bearer, "bearer ")

	_, err := jwt.Parse(bearer, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(e.jwtSigningKey), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return gatewayerr.InvalidToken(err)
	}
	return nil
}

func (e *Engine) upsertAndIssue(ctx context.Context, sealed tee.SealedIdentity, authType identity.AuthTypeCode) ([]byte, error) {
	if err := e.store.InsertAccountIfNew(ctx, hexBytes(sealed.AccHash[:]), hexBytes(sealed.AccSeal)); err != nil {
		return nil, gatewayerr.StoreFailure("insert_account", err)
	}
	return e.issuer.Issue(ctx, sealed.AccHash, authType, 0)
}

func authTypeCodeFor(authType tee.AuthType) identity.AuthTypeCode {
	if authType == tee.AuthGitHub {
		return identity.AuthTypeGitHub
	}
	return identity.AuthTypeGoogle
}

func authTypeCodeForProvider(provider oauthclient.Provider) identity.AuthTypeCode {
	if provider == oauthclient.GitHub {
		return identity.AuthTypeGitHub
	}
	return identity.AuthTypeGoogle
}

type sealResult struct {
	sealed tee.SealedIdentity
	status tee.LogicalStatus
}

func hexBytes(b []byte) string {
	return hex.EncodeToString(b)
}
