package tee

import "context"

// Bridge is the full capability surface of §4.1. Every method is
// synchronous and blocking from the caller's point of view — the Work Pool
// is responsible for keeping these calls off the HTTP I/O path, not Bridge
// itself.
//
// Error-reporting convention, applied uniformly across every method:
//   - err != nil: transport failure. The call did not complete inside the
//     TEE at all (simulation: an internal invariant broke, e.g. an unknown
//     session or a cryptographic operation that cannot fail under normal
//     operation failed anyway). Callers map this to SgxError.
//   - err == nil, status != LogicalSuccess: the call reached the TEE and
//     completed, but the TEE's own verdict was not success. Callers map
//     LogicalInvalidAttribute to DataError for AuthOAuth and to OsError for
//     the email and seal capabilities, and LogicalFailure to SGXError.
//   - err == nil, status == LogicalSuccess: outputs are valid.
type Bridge interface {
	// KeyExchange derives a fresh session keyed by a new session id from
	// the client's uncompressed P-256 public key (no 0x04 prefix).
	KeyExchange(ctx context.Context, clientPubKey [ClientPubLen]byte) (KeyExchangeResult, LogicalStatus, error)

	// SendCipherEmail decrypts ciphertext to an email address, generates
	// a random numeric code, retains it keyed by session id, and delivers
	// it over the TEE's external side channel (simulated: the delivery is
	// logged without the code; the code is never returned to the caller).
	SendCipherEmail(ctx context.Context, sessionID [SessionIDLen]byte, ciphertext []byte) (LogicalStatus, error)

	// RegisterEmailConfirm decrypts ciphertext to a confirmation code,
	// compares it against the code stored for sessionID, and on match
	// seals the bound email address into a durable identity.
	RegisterEmailConfirm(ctx context.Context, sessionID [SessionIDLen]byte, ciphertext []byte) (SealedIdentity, LogicalStatus, error)

	// AuthOAuth (Variant A) decrypts ciphertext to a provider authorization
	// code, redeems it against the provider from inside the trust
	// boundary, and seals the resulting subject identifier.
	AuthOAuth(ctx context.Context, sessionID [SessionIDLen]byte, ciphertext []byte, authType AuthType) (SealedIdentity, LogicalStatus, error)

	// Seal (Variant B) seals host-supplied plaintext — the host has
	// already redeemed the OAuth code itself and composed
	// "{subject}@{provider}".
	Seal(ctx context.Context, plaintext []byte) (SealedIdentity, LogicalStatus, error)

	// SignAuthJWT signs a JWT over the given Auth attributes with the
	// enclave's attested signing key.
	SignAuthJWT(ctx context.Context, accHash [AccHashLen]byte, authID int64, authExp int64) (SignedToken, LogicalStatus, error)

	// CloseSession drops all TEE-side state for sessionID: the derived
	// channel key and any pending email challenge code.
	CloseSession(ctx context.Context, sessionID [SessionIDLen]byte) error

	// SignAuth is the legacy capability from §4.6/§9: unreachable from any
	// live endpoint, retained only because the bridge surface names it.
	SignAuth(ctx context.Context, accHash [AccHashLen]byte) (pubKey []byte, signature []byte, status LogicalStatus, err error)

	// Attest returns the current attestation report for this enclave
	// instance.
	Attest(ctx context.Context) (AttestationReport, error)

	// Mode reports whether this Bridge is backed by simulation or real
	// hardware.
	Mode() EnclaveMode
}
