package tee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// channelKeyInfo is the HKDF info string binding derived channel keys to
// their purpose; it prevents a key derived here from being confused with
// a key derived for sealing or anywhere else that might reuse the same
// shared secret format.
const channelKeyInfo = "dauth/session-channel-key/v1"

// deriveChannelKey turns an ECDH shared secret into a 32-byte AES-256 key
// via HKDF-SHA3-256, salted with the session id so that two sessions sharing
// (hypothetically) the same ECDH output never derive the same channel key.
func deriveChannelKey(sharedSecret, sessionID []byte) ([]byte, error) {
	r := hkdf.New(sha3.New256, sharedSecret, sessionID, []byte(channelKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive channel key: %w", err)
	}
	return key, nil
}

// generateECDHKeypair produces a fresh P-256 ECDH keypair for one key
// exchange. A new keypair is generated per exchange; the TEE never reuses
// an ephemeral private key across sessions.
func generateECDHKeypair() (*ecdh.PrivateKey, error) {
	return ecdh.P256().GenerateKey(rand.Reader)
}

// uncompressedPoint returns the raw 64-byte X||Y encoding (no 0x04 prefix)
// of an ECDH public key, matching the wire contract of §4.1.
func uncompressedPoint(pub *ecdh.PublicKey) ([ClientPubLen]byte, error) {
	raw := pub.Bytes() // ecdh.PublicKey.Bytes() for NIST curves is 0x04||X||Y
	var out [ClientPubLen]byte
	if len(raw) != ClientPubLen+1 || raw[0] != 0x04 {
		return out, fmt.Errorf("unexpected ecdh public key encoding (len=%d)", len(raw))
	}
	copy(out[:], raw[1:])
	return out, nil
}

// parseClientPubKey reconstructs an ecdh.PublicKey from the bare 64-byte
// X||Y form the client sends (the 0x04 prefix is stripped before the TEE
// ever sees the key, per §4.1).
func parseClientPubKey(xy [ClientPubLen]byte) (*ecdh.PublicKey, error) {
	uncompressed := make([]byte, 0, ClientPubLen+1)
	uncompressed = append(uncompressed, 0x04)
	uncompressed = append(uncompressed, xy[:]...)
	return ecdh.P256().NewPublicKey(uncompressed)
}

// aesGCMSeal encrypts plaintext under key, prepending the nonce to the
// returned ciphertext.
func aesGCMSeal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// aesGCMOpen decrypts a nonce-prefixed ciphertext produced by aesGCMSeal.
func aesGCMOpen(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

// accountHash computes the deterministic acc_hash for a canonical
// credential string: SHA3-256, matching the hash family the rest of the
// corpus's TEE code uses for content-addressed identifiers.
func accountHash(credential string) [AccHashLen]byte {
	return sha3.Sum256([]byte(credential))
}

// signingKeypair holds the enclave's long-lived ECDSA P-256 key used to
// sign issued JWTs (and, for the legacy SignAuth capability, raw payloads).
// Generated once at Bridge construction and held only in enclave memory.
type signingKeypair struct {
	priv *ecdsa.PrivateKey
}

func newSigningKeypair() (*signingKeypair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &signingKeypair{priv: priv}, nil
}

func (k *signingKeypair) publicKeyBytes() []byte {
	return elliptic.Marshal(elliptic.P256(), k.priv.PublicKey.X, k.priv.PublicKey.Y)
}

// rawSign implements the legacy sign_auth capability's raw (r||s) signature
// format, matching the convention used elsewhere in this codebase's
// enclave-side signing code.
func (k *signingKeypair) rawSign(digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, k.priv, digest)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	return sig, nil
}

// sealingKey is a separate AES-256 key simulating the enclave's hardware
// sealing key (distinct from any per-session channel key); account seals
// must remain unsealable across the lifetime of the enclave instance, not
// just one session.
func newSealingKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate sealing key: %w", err)
	}
	return key, nil
}
