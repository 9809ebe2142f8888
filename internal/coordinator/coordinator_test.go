package coordinator

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/R3E-Network/dauth-gateway/internal/engine/email"
	"github.com/R3E-Network/dauth-gateway/internal/engine/oauthengine"
	"github.com/R3E-Network/dauth-gateway/internal/identity"
	"github.com/R3E-Network/dauth-gateway/internal/session"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
	"github.com/R3E-Network/dauth-gateway/internal/token"
	"github.com/R3E-Network/dauth-gateway/internal/workpool"
)

type fakeBridge struct {
	tee.Bridge

	sendStatus    tee.LogicalStatus
	sendErr       error
	closedSession [tee.SessionIDLen]byte
	closeCalled   bool
}

func (f *fakeBridge) SendCipherEmail(ctx context.Context, sessionID [tee.SessionIDLen]byte, ciphertext []byte) (tee.LogicalStatus, error) {
	return f.sendStatus, f.sendErr
}

func (f *fakeBridge) CloseSession(ctx context.Context, sessionID [tee.SessionIDLen]byte) error {
	f.closeCalled = true
	f.closedSession = sessionID
	return nil
}

func newTestCoordinator(t *testing.T, registry *session.Registry, bridge *fakeBridge) *Coordinator {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_ = mock

	store := identity.NewPostgresStore(db)
	pool := workpool.New(2, time.Second)
	issuer := token.New(bridge, store, pool)
	emailEngine := email.New(bridge, store, pool, issuer)
	oauthEngine := oauthengine.New(bridge, store, pool, issuer, nil, "")

	return New(registry, bridge, emailEngine, oauthEngine)
}

func TestAuthEmailInitiate_SessionNotFound(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	bridge := &fakeBridge{}
	c := newTestCoordinator(t, registry, bridge)

	err := c.AuthEmailInitiate(context.Background(), hex.EncodeToString(make([]byte, 32)), "aa")
	if err == nil {
		t.Fatal("AuthEmailInitiate() expected error for unknown session, got nil")
	}
}

func TestAuthEmailInitiate_ExpiredSessionClosesTEE(t *testing.T) {
	registry := session.NewRegistry(-time.Minute) // already-expired TTL
	bridge := &fakeBridge{}
	c := newTestCoordinator(t, registry, bridge)

	var sid [32]byte
	sid[0] = 0x01
	rec := registry.Register(sid)

	err := c.AuthEmailInitiate(context.Background(), rec.SessionIDHex, "aa")
	if err == nil {
		t.Fatal("AuthEmailInitiate() expected error for expired session, got nil")
	}
	if !bridge.closeCalled {
		t.Fatal("expected CloseSession to be called for an expired session")
	}
	if bridge.closedSession != sid {
		t.Fatalf("CloseSession called with %x, want %x", bridge.closedSession, sid)
	}
}

func TestAuthEmailInitiate_InvalidCipherHex(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	bridge := &fakeBridge{sendStatus: tee.LogicalSuccess}
	c := newTestCoordinator(t, registry, bridge)

	var sid [32]byte
	rec := registry.Register(sid)

	err := c.AuthEmailInitiate(context.Background(), rec.SessionIDHex, "not-hex")
	if err == nil {
		t.Fatal("AuthEmailInitiate() expected error for malformed hex, got nil")
	}
}

func TestAuthEmailInitiate_Success(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	bridge := &fakeBridge{sendStatus: tee.LogicalSuccess}
	c := newTestCoordinator(t, registry, bridge)

	var sid [32]byte
	rec := registry.Register(sid)

	if err := c.AuthEmailInitiate(context.Background(), rec.SessionIDHex, "deadbeef"); err != nil {
		t.Fatalf("AuthEmailInitiate() error = %v", err)
	}
}

func TestAuthOAuth2_UnknownOAuthType(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	bridge := &fakeBridge{}
	c := newTestCoordinator(t, registry, bridge)

	var sid [32]byte
	rec := registry.Register(sid)

	if _, err := c.AuthOAuth2(context.Background(), rec.SessionIDHex, "deadbeef", "not-a-provider"); err == nil {
		t.Fatal("AuthOAuth2() expected error for unknown oauth_type, got nil")
	}
}
