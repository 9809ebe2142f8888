// Package email implements the Email Challenge Engine: the two-phase
// send-code / confirm-code protocol described in §4.4. The engine never
// sees plaintext — both phases hand ciphertext straight to the TEE and act
// only on the logical status and sealed outputs that come back.
package email

import (
	"context"

	"github.com/R3E-Network/dauth-gateway/infrastructure/hex"
	"github.com/R3E-Network/dauth-gateway/internal/gatewayerr"
	"github.com/R3E-Network/dauth-gateway/internal/identity"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
	"github.com/R3E-Network/dauth-gateway/internal/token"
	"github.com/R3E-Network/dauth-gateway/internal/workpool"
)

// Engine drives both phases of the email challenge over an already
// session-validated request; the Request Coordinator owns session lookup,
// expiry, and hex decoding (§9: decoded exactly once, above this package).
type Engine struct {
	bridge tee.Bridge
	store  identity.Store
	pool   *workpool.Pool
	issuer *token.Issuer
}

// New builds an Engine over the given bridge, identity store, work pool,
// and token issuer.
func New(bridge tee.Bridge, store identity.Store, pool *workpool.Pool, issuer *token.Issuer) *Engine {
	return &Engine{bridge: bridge, store: store, pool: pool, issuer: issuer}
}

// Initiate forwards cipherEmail to send_cipher_email. Success carries no
// payload back to the client; the confirmation code itself travels only
// over the TEE's external channel.
func (e *Engine) Initiate(ctx context.Context, sessionID [tee.SessionIDLen]byte, cipherEmail []byte) error {
	v, err := e.pool.Submit(ctx, func(ctx context.Context) (any, error) {
		status, err := e.bridge.SendCipherEmail(ctx, sessionID, cipherEmail)
		if err != nil {
			return nil, err
		}
		return status, nil
	})
	if err != nil {
		return gatewayerr.SgxTransportFailure("send_cipher_email", err)
	}

	status := v.(tee.LogicalStatus)
	switch status {
	case tee.LogicalSuccess:
		return nil
	case tee.LogicalInvalidAttribute:
		return gatewayerr.InvalidAttribute()
	default:
		return gatewayerr.SgxLogicalFailure("send cipher email failed", nil)
	}
}

// Confirm forwards cipherCode to register_email_confirm. On success it
// upserts the resolved account and issues a bearer JWT via the Token
// Issuer.
func (e *Engine) Confirm(ctx context.Context, sessionID [tee.SessionIDLen]byte, cipherCode []byte) ([]byte, error) {
	v, err := e.pool.Submit(ctx, func(ctx context.Context) (any, error) {
		sealed, status, err := e.bridge.RegisterEmailConfirm(ctx, sessionID, cipherCode)
		if err != nil {
			return nil, err
		}
		return confirmResult{sealed: sealed, status: status}, nil
	})
	if err != nil {
		return nil, gatewayerr.SgxTransportFailure("register_email_confirm", err)
	}

	r := v.(confirmResult)
	switch r.status {
	case tee.LogicalSuccess:
	case tee.LogicalInvalidAttribute:
		return nil, gatewayerr.InvalidAttribute()
	default:
		return nil, gatewayerr.SgxLogicalFailure("register email confirm failed", nil)
	}

	if err := e.store.InsertAccountIfNew(ctx, hexBytes(r.sealed.AccHash[:]), hexBytes(r.sealed.AccSeal)); err != nil {
		return nil, gatewayerr.StoreFailure("insert_account", err)
	}

	return e.issuer.Issue(ctx, r.sealed.AccHash, identity.AuthTypeEmail, 0)
}

type confirmResult struct {
	sealed tee.SealedIdentity
	status tee.LogicalStatus
}

func hexBytes(b []byte) string {
	return hex.EncodeToString(b)
}
