package httpapi

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/R3E-Network/dauth-gateway/internal/coordinator"
	"github.com/R3E-Network/dauth-gateway/internal/engine/email"
	"github.com/R3E-Network/dauth-gateway/internal/engine/oauthengine"
	"github.com/R3E-Network/dauth-gateway/internal/identity"
	"github.com/R3E-Network/dauth-gateway/internal/session"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
	"github.com/R3E-Network/dauth-gateway/internal/token"
	"github.com/R3E-Network/dauth-gateway/internal/workpool"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	bridge, err := tee.NewSimulationBridge(tee.Config{})
	if err != nil {
		t.Fatalf("NewSimulationBridge() error = %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := identity.NewPostgresStore(db)
	pool := workpool.New(4, 5*time.Second)
	issuer := token.New(bridge, store, pool)
	registry := session.NewRegistry(time.Minute)

	emailEngine := email.New(bridge, store, pool, issuer)
	oauthEngine := oauthengine.New(bridge, store, pool, issuer, nil, "shared-secret")
	coord := coordinator.New(registry, bridge, emailEngine, oauthEngine)

	return New(bridge, registry, coord, oauthEngine, nil), mock
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doJSON(t, s.Router(), http.MethodGet, "/dauth/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "Webapp is up and running!" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestExchangeKey_Success(t *testing.T) {
	s, _ := newTestServer(t)

	clientPub := validClientPubHex(t)
	rr := doJSON(t, s.Router(), http.MethodPost, "/dauth/exchange_key", exchangeKeyRequest{Key: clientPub})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp exchangeKeyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("status field = %q, want success", resp.Status)
	}
	if len(resp.Key) != 2*(tee.EnclavePubLen+1) {
		t.Fatalf("key len = %d, want %d", len(resp.Key), 2*(tee.EnclavePubLen+1))
	}
	if resp.Key[:2] != "04" {
		t.Fatalf("key prefix = %q, want 04", resp.Key[:2])
	}
	if len(resp.SessionID) != 2*tee.SessionIDLen {
		t.Fatalf("session_id len = %d, want %d", len(resp.SessionID), 2*tee.SessionIDLen)
	}
}

func TestExchangeKey_InvalidHexFails(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s.Router(), http.MethodPost, "/dauth/exchange_key", exchangeKeyRequest{Key: "not-hex"})
	if rr.Code == http.StatusOK {
		t.Fatalf("status = %d, want failure", rr.Code)
	}

	var resp failResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "fail" {
		t.Fatalf("status = %q, want fail", resp.Status)
	}
	if resp.ErrorCode != "ReqError" {
		t.Fatalf("error_code = %q, want ReqError", resp.ErrorCode)
	}
}

func TestAuthEmail_UnknownSessionFails(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s.Router(), http.MethodPost, "/dauth/auth_email", authEmailRequest{
		SessionID:   hex.EncodeToString(make([]byte, tee.SessionIDLen)),
		CipherEmail: "deadbeef",
	})
	if rr.Code == http.StatusOK {
		t.Fatalf("status = %d, want failure", rr.Code)
	}

	var resp failResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ErrorCode != "DataError" {
		t.Fatalf("error_code = %q, want DataError", resp.ErrorCode)
	}
}

func TestAuthOAuth2_UnknownOAuthTypeFails(t *testing.T) {
	s, _ := newTestServer(t)
	s.registry.Register([tee.SessionIDLen]byte{})

	rr := doJSON(t, s.Router(), http.MethodPost, "/dauth/auth_oauth2", authOAuth2Request{
		SessionID:  hex.EncodeToString(make([]byte, tee.SessionIDLen)),
		CipherCode: "deadbeef",
		OAuthType:  "not-a-provider",
	})
	var resp failResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ErrorCode != "ReqError" {
		t.Fatalf("error_code = %q", resp.ErrorCode)
	}
}

func TestAuthOAuthVariantB_MissingBearerFails(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s.Router(), http.MethodPost, "/dauth/auth_oauth", authOAuthRequest{
		Code:      "some-code",
		OAuthType: "google",
	})
	var resp failResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ErrorCode != "DataError" {
		t.Fatalf("error_code = %q, want DataError", resp.ErrorCode)
	}
}

// validClientPubHex builds a syntactically valid "04" + 128-hex-char
// client public key for exchange_key tests. The bytes don't need to be a
// real point on P-256 for this package's boundary checks, but KeyExchange
// inside the simulation bridge does validate the curve point, so this
// generates a genuine P-256 public key.
func validClientPubHex(t *testing.T) string {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return hex.EncodeToString(priv.PublicKey().Bytes()) // 0x04 || X || Y
}
