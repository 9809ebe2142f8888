// Package tee implements the TEE Bridge: the narrow capability surface the
// gateway uses to reach into the hardware-isolated enclave that holds every
// session key, credential seal, and signing key. The gateway itself never
// sees plaintext credentials or key material; it only marshals ciphertext
// across this boundary.
//
// In simulation mode (the default, and the only mode that runs without real
// SGX hardware) the "enclave" is an in-process, exported-nowhere Go value.
// The capability contracts — fixed buffer sizes, the two-discriminator
// status model, session-keyed state the host cannot read — are preserved
// exactly as they would be against hardware, so that swapping in a real
// attested enclave later changes only the implementation of Bridge, never
// its callers.
package tee

import (
	"errors"
	"time"
)

// MaxSealBytes and MaxJWTBytes are the TEE's fixed output buffer sizes. They
// are part of the enclave's ABI and must never be exceeded; callers that
// receive a seal or JWT larger than this indicate a bridge bug, not a
// recoverable condition.
const (
	MaxSealBytes = 1024
	MaxJWTBytes  = 1024

	SessionIDLen  = 32
	AccHashLen    = 32
	ClientPubLen  = 64 // uncompressed P-256 X||Y, no 0x04 prefix
	EnclavePubLen = 64
)

// AuthType discriminates the credential kind bound to an Account/Auth record.
type AuthType string

const (
	AuthEmail  AuthType = "Email"
	AuthGoogle AuthType = "Google"
	AuthGitHub AuthType = "Github"
)

// ParseAuthType maps an oauth_type wire discriminator to an AuthType. Only
// "google" and "github" are recognized for OAuth; Email auth never goes
// through this path.
func ParseAuthType(oauthType string) (AuthType, bool) {
	switch oauthType {
	case "google":
		return AuthGoogle, true
	case "github":
		return AuthGitHub, true
	default:
		return "", false
	}
}

// LogicalStatus is the TEE's own verdict once a call has actually executed
// inside the enclave. It is orthogonal to transport failure: a call can
// reach the TEE (no Go error) and still report anything other than
// LogicalSuccess.
type LogicalStatus int

const (
	// LogicalSuccess: the capability executed and produced valid outputs.
	LogicalSuccess LogicalStatus = iota
	// LogicalInvalidAttribute: the one distinguished failure mode — a
	// confirmation code or OAuth code did not match what the TEE expected.
	LogicalInvalidAttribute
	// LogicalFailure: any other non-success TEE result. Collapses to
	// SGXError on the wire.
	LogicalFailure
)

func (s LogicalStatus) String() string {
	switch s {
	case LogicalSuccess:
		return "success"
	case LogicalInvalidAttribute:
		return "invalid_attribute"
	default:
		return "failure"
	}
}

// ErrEnclaveNotReady reports an enclave that cannot serve calls. The
// simulation bridge never returns it.
var ErrEnclaveNotReady = errors.New("tee: enclave not ready")

// EnclaveMode distinguishes how the Bridge's cryptography is actually
// executed.
type EnclaveMode string

const (
	ModeSimulation EnclaveMode = "simulation"
	ModeHardware   EnclaveMode = "hardware"
)

// KeyExchangeResult is the output of Bridge.KeyExchange.
type KeyExchangeResult struct {
	EnclavePublicKey [EnclavePubLen]byte
	SessionID        [SessionIDLen]byte
}

// SealedIdentity is the (acc_hash, acc_seal) pair produced by any capability
// that resolves a credential to a durable account identity.
type SealedIdentity struct {
	AccHash [AccHashLen]byte
	AccSeal []byte // ≤ MaxSealBytes
}

// SignedToken is the bounded-length JWT produced by sign_auth_jwt.
type SignedToken struct {
	JWT []byte // ≤ MaxJWTBytes, UTF-8
}

// AttestationReport describes the enclave identity a client could verify
// out of band. Only meaningful in hardware mode; simulation mode returns a
// report clearly marked as such.
type AttestationReport struct {
	Mode        EnclaveMode
	GeneratedAt time.Time
	// MREnclave/MRSigner are populated only in hardware mode (via
	// github.com/edgelesssys/ego). Left empty in simulation.
	MREnclave string
	MRSigner  string
}
