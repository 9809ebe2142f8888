// Package token is the Token Issuer: given a sealed identity, it asks the
// TEE to sign a JWT over the identity's auth attributes and only then
// commits that auth attempt to the Identity Store. Signing and persistence
// never swap order — a signing failure must leave no auth row behind.
package token

import (
	"context"
	"time"

	"github.com/R3E-Network/dauth-gateway/infrastructure/hex"
	"github.com/R3E-Network/dauth-gateway/internal/gatewayerr"
	"github.com/R3E-Network/dauth-gateway/internal/identity"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
	"github.com/R3E-Network/dauth-gateway/internal/workpool"
)

// DefaultTTL is the lifetime given to a freshly issued auth token (spec
// §4.4: "Auth{type=Email, exp=now+3600s}").
const DefaultTTL = time.Hour

// Issuer signs and persists Auth records.
type Issuer struct {
	bridge tee.Bridge
	store  identity.Store
	pool   *workpool.Pool
}

// New builds an Issuer over the given bridge, store, and work pool.
func New(bridge tee.Bridge, store identity.Store, pool *workpool.Pool) *Issuer {
	return &Issuer{bridge: bridge, store: store, pool: pool}
}

// Issue allocates the next auth_id for accHash inside an open transaction,
// asks the TEE to sign a JWT binding (acc_hash, auth_id, auth_exp), and only
// commits the row once the signature succeeds. On any TEE failure the
// allocated row is rolled back and never becomes visible, preserving
// invariant #6 (sign-before-persist, no orphan history).
func (iss *Issuer) Issue(ctx context.Context, accHash [tee.AccHashLen]byte, authType identity.AuthTypeCode, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	authExp := time.Now().UTC().Add(ttl).Unix()

	// The transaction stays open for the duration of the TEE call below;
	// that's deliberate, not an oversight — it's the only way to guarantee
	// sign-then-persist without a second DB round trip to re-allocate a
	// fresh auth_id if the first one's signature fails.
	pending, err := iss.store.BeginAuthInsert(ctx, hexAccHash(accHash), authType, authExp)
	if err != nil {
		return nil, gatewayerr.StoreFailure("begin_auth_insert", err)
	}

	v, err := iss.pool.Submit(ctx, func(ctx context.Context) (any, error) {
		token, status, err := iss.bridge.SignAuthJWT(ctx, accHash, pending.AuthID, authExp)
		if err != nil {
			return nil, err
		}
		return signResult{token: token, status: status}, nil
	})
	if err != nil {
		_ = pending.Rollback()
		return nil, gatewayerr.SgxTransportFailure("sign_auth_jwt", err)
	}

	r := v.(signResult)
	if r.status != tee.LogicalSuccess {
		_ = pending.Rollback()
		return nil, gatewayerr.SgxLogicalFailure("sign auth failed", nil)
	}

	if err := pending.Commit(); err != nil {
		return nil, gatewayerr.StoreFailure("commit_auth_insert", err)
	}
	return r.token.JWT, nil
}

type signResult struct {
	token  tee.SignedToken
	status tee.LogicalStatus
}

func hexAccHash(accHash [tee.AccHashLen]byte) string {
	return hex.EncodeToString(accHash[:])
}
