package session

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/dauth-gateway/infrastructure/logging"
)

// Closer notifies the TEE that a session's state should be dropped. It is
// satisfied by tee.Bridge.CloseSession; kept as a narrow interface here so
// the session package does not need to import the tee package.
type Closer interface {
	CloseSession(ctx context.Context, sessionID [32]byte) error
}

// Reaper periodically sweeps a Registry for expired sessions and notifies
// the TEE for each one. The registry alone only evicts lazily on Get; a
// session nobody ever queries again would otherwise leak its TEE-side
// channel key and pending code forever.
type Reaper struct {
	cron *cron.Cron
	log  *logging.Logger
}

// NewReaper builds a Reaper that sweeps registry every period using a
// "@every" cron descriptor.
func NewReaper(registry *Registry, closer Closer, period string, log *logging.Logger) (*Reaper, error) {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", period)

	_, err := c.AddFunc(spec, func() {
		ids := registry.Sweep()
		for _, idHex := range ids {
			idBytes, err := hexToSessionID(idHex)
			if err != nil {
				log.WithError(err).Error("reaper: malformed session id, skipping TEE close")
				continue
			}
			if err := closer.CloseSession(context.Background(), idBytes); err != nil {
				log.WithError(err).Error("reaper: tee close_session failed")
				continue
			}
			log.LogSessionEvent(context.Background(), "reaped", idHex)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session reaper: %w", err)
	}

	return &Reaper{cron: c, log: log}, nil
}

// Start begins the periodic sweep in the background.
func (r *Reaper) Start() { r.cron.Start() }

// Stop halts the sweep and waits for any in-flight run to finish.
func (r *Reaper) Stop() { <-r.cron.Stop().Done() }

func hexToSessionID(idHex string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(idHex)
	if err != nil {
		return out, err
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("session id must decode to 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}
