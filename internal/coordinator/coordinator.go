// Package coordinator implements the Request Coordinator (§4.7): the
// common prelude every session-bearing request goes through before it
// reaches an engine — session lookup, expiry enforcement, and a single hex
// decode of every wire-hex field. Key exchange, health, and Variant B OAuth
// (which carries no session_id at all) bypass this prelude entirely and
// call their own paths directly.
package coordinator

import (
	"context"

	"github.com/R3E-Network/dauth-gateway/infrastructure/hex"
	"github.com/R3E-Network/dauth-gateway/internal/engine/email"
	"github.com/R3E-Network/dauth-gateway/internal/engine/oauthengine"
	"github.com/R3E-Network/dauth-gateway/internal/gatewayerr"
	"github.com/R3E-Network/dauth-gateway/internal/session"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
)

// Coordinator owns no mutable state of its own (§4.7); it only wires the
// Session Registry, the TEE's CloseSession capability, and the two engines
// together.
type Coordinator struct {
	registry    *session.Registry
	bridge      tee.Bridge
	emailEngine *email.Engine
	oauthEngine *oauthengine.Engine
}

// New builds a Coordinator.
func New(registry *session.Registry, bridge tee.Bridge, emailEngine *email.Engine, oauthEngine *oauthengine.Engine) *Coordinator {
	return &Coordinator{registry: registry, bridge: bridge, emailEngine: emailEngine, oauthEngine: oauthEngine}
}

// AuthEmailInitiate runs the common prelude then dispatches to the Email
// Challenge Engine's first phase.
func (c *Coordinator) AuthEmailInitiate(ctx context.Context, sessionIDHex, cipherEmailHex string) error {
	sessionID, err := c.prelude(ctx, sessionIDHex)
	if err != nil {
		return err
	}
	cipherEmail, err := decodeVarHex("cipher_email", cipherEmailHex)
	if err != nil {
		return err
	}
	return c.emailEngine.Initiate(ctx, sessionID, cipherEmail)
}

// AuthEmailConfirm runs the common prelude then dispatches to the Email
// Challenge Engine's second phase.
func (c *Coordinator) AuthEmailConfirm(ctx context.Context, sessionIDHex, cipherCodeHex string) ([]byte, error) {
	sessionID, err := c.prelude(ctx, sessionIDHex)
	if err != nil {
		return nil, err
	}
	cipherCode, err := decodeVarHex("cipher_code", cipherCodeHex)
	if err != nil {
		return nil, err
	}
	return c.emailEngine.Confirm(ctx, sessionID, cipherCode)
}

// AuthOAuth2 runs the common prelude then dispatches to the OAuth2
// Challenge Engine's Variant A (TEE-mediated redemption).
func (c *Coordinator) AuthOAuth2(ctx context.Context, sessionIDHex, cipherCodeHex, oauthType string) ([]byte, error) {
	sessionID, err := c.prelude(ctx, sessionIDHex)
	if err != nil {
		return nil, err
	}
	cipherCode, err := decodeVarHex("cipher_code", cipherCodeHex)
	if err != nil {
		return nil, err
	}
	authType, ok := tee.ParseAuthType(oauthType)
	if !ok {
		return nil, gatewayerr.UnknownOAuthType(oauthType)
	}
	return c.oauthEngine.AuthOAuth2(ctx, sessionID, cipherCode, authType)
}

// prelude enforces steps 1-3 of §4.7: session lookup, expiry check (closing
// the session in both the registry and the TEE when expired), and a single
// hex decode of session_id into its 32-byte form.
func (c *Coordinator) prelude(ctx context.Context, sessionIDHex string) ([tee.SessionIDLen]byte, error) {
	var sessionID [tee.SessionIDLen]byte

	rec, ok, expired := c.registry.Get(sessionIDHex)
	if expired {
		decoded, hexErr := decodeSessionIDHex(sessionIDHex)
		if hexErr == nil {
			_ = c.bridge.CloseSession(ctx, decoded)
		}
		return sessionID, gatewayerr.SessionExpired()
	}
	if !ok {
		return sessionID, gatewayerr.SessionNotFound()
	}

	decoded, err := decodeSessionIDHex(rec.SessionIDHex)
	if err != nil {
		return sessionID, err
	}
	return decoded, nil
}

// decodeSessionIDHex decodes a fixed 32-byte session id. decodeVarHex
// decodes every other hex field (ciphertext), which carries no fixed
// length.
func decodeSessionIDHex(value string) ([tee.SessionIDLen]byte, error) {
	var out [tee.SessionIDLen]byte
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return out, gatewayerr.InvalidHex("session_id", err)
	}
	if len(decoded) != tee.SessionIDLen {
		return out, gatewayerr.InvalidHex("session_id", nil)
	}
	copy(out[:], decoded)
	return out, nil
}

func decodeVarHex(field, value string) ([]byte, error) {
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, gatewayerr.InvalidHex(field, err)
	}
	return decoded, nil
}
