// Package httpapi wires the six endpoints of §6 onto a gorilla/mux router:
// exchange_key, auth_email(_confirm), auth_oauth2, auth_oauth, and health.
// Every JSON-facing boundary concern that doesn't belong in an engine lives
// here — the 0x04 public-key prefix, the {status:"fail", error_code,
// error_msg} envelope, and Variant B's bearer-header extraction.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/dauth-gateway/infrastructure/httputil"
	"github.com/R3E-Network/dauth-gateway/infrastructure/logging"
	"github.com/R3E-Network/dauth-gateway/internal/coordinator"
	"github.com/R3E-Network/dauth-gateway/internal/engine/oauthengine"
	"github.com/R3E-Network/dauth-gateway/internal/gatewayerr"
	"github.com/R3E-Network/dauth-gateway/internal/session"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
)

// Server holds every dependency a handler needs. Middleware is the
// caller's responsibility to wrap around Router() (see cmd/dauth-gateway).
type Server struct {
	bridge      tee.Bridge
	registry    *session.Registry
	coordinator *coordinator.Coordinator
	oauthEngine *oauthengine.Engine
	log         *logging.Logger
}

// New builds a Server.
func New(bridge tee.Bridge, registry *session.Registry, coord *coordinator.Coordinator, oauthEngine *oauthengine.Engine, log *logging.Logger) *Server {
	return &Server{bridge: bridge, registry: registry, coordinator: coord, oauthEngine: oauthEngine, log: log}
}

// Router builds the gorilla/mux router for all six endpoints. Middleware
// (tracing, logging, recovery, CORS, body limit, timeout, header gate,
// metrics) is attached by the caller via router.Use, matching how the
// rest of this codebase composes a mux.Router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/dauth/exchange_key", s.handleExchangeKey).Methods(http.MethodPost)
	r.HandleFunc("/dauth/auth_email", s.handleAuthEmail).Methods(http.MethodPost)
	r.HandleFunc("/dauth/auth_email_confirm", s.handleAuthEmailConfirm).Methods(http.MethodPost)
	r.HandleFunc("/dauth/auth_oauth2", s.handleAuthOAuth2).Methods(http.MethodPost)
	r.HandleFunc("/dauth/auth_oauth", s.handleAuthOAuthVariantB).Methods(http.MethodPost)
	r.HandleFunc("/dauth/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Webapp is up and running!"))
}

// writeFail renders any error as the shared {status:"fail", error_code,
// error_msg} envelope. Errors that are not already a *gatewayerr.Error
// (a bug, not a normal failure mode) collapse to SGXError so the client
// never sees an internal Go error string.
func writeFail(w http.ResponseWriter, err error) {
	gwErr, ok := err.(*gatewayerr.Error)
	if !ok {
		gwErr = gatewayerr.Wrap(gatewayerr.SGXError, "internal error", err)
	}
	httputil.WriteJSON(w, gwErr.HTTPStatus, failResponse{
		Status:    "fail",
		ErrorCode: string(gwErr.WireCode()),
		ErrorMsg:  gwErr.Message,
	})
}
