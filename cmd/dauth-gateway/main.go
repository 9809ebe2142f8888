// Package main is the dauth gateway's entry point: it wires configuration,
// the identity store, the TEE bridge, the session registry/reaper, the work
// pool, the two challenge engines, the Request Coordinator, and the HTTP API
// together, then serves §6's six endpoints behind the usual middleware
// chain.
package main

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/dauth-gateway/infrastructure/logging"
	"github.com/R3E-Network/dauth-gateway/infrastructure/metrics"
	"github.com/R3E-Network/dauth-gateway/infrastructure/middleware"
	"github.com/R3E-Network/dauth-gateway/internal/config"
	"github.com/R3E-Network/dauth-gateway/internal/coordinator"
	"github.com/R3E-Network/dauth-gateway/internal/engine/email"
	"github.com/R3E-Network/dauth-gateway/internal/engine/oauthengine"
	"github.com/R3E-Network/dauth-gateway/internal/httpapi"
	"github.com/R3E-Network/dauth-gateway/internal/identity"
	"github.com/R3E-Network/dauth-gateway/internal/oauthclient"
	"github.com/R3E-Network/dauth-gateway/internal/session"
	"github.com/R3E-Network/dauth-gateway/internal/tee"
	"github.com/R3E-Network/dauth-gateway/internal/token"
	"github.com/R3E-Network/dauth-gateway/internal/workpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitDefault("dauth-gateway", cfg.LogLevel, cfg.LogFormat)
	logger := logging.Default()

	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxConnections)
	db.SetConnMaxIdleTime(cfg.DBIdleTimeout)

	if err := identity.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate identity schema: %v", err)
	}
	store := identity.NewPostgresStore(db)

	oauthCfg := oauthclient.Config{
		oauthclient.Google: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		},
		oauthclient.GitHub: {
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
		},
	}

	bridge, err := tee.NewSimulationBridge(tee.Config{
		OAuthConfig: oauthCfg,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to initialize TEE bridge: %v", err)
	}

	registry := session.NewRegistry(cfg.SessionTTL)
	reaper, err := session.NewReaper(registry, bridge, cfg.SessionReapPeriod.String(), logger)
	if err != nil {
		log.Fatalf("Failed to schedule session reaper: %v", err)
	}
	reaper.Start()
	defer reaper.Stop()

	pool := workpool.New(cfg.WorkPoolSize, cfg.WorkPoolTimeout)
	issuer := token.New(bridge, store, pool)

	emailEngine := email.New(bridge, store, pool, issuer)
	redeemer := oauthclient.NewRedeemer(oauthCfg, nil)
	oauthEngine := oauthengine.New(bridge, store, pool, issuer, redeemer, cfg.JWTSigningKey)

	coord := coordinator.New(registry, bridge, emailEngine, oauthEngine)
	server := httpapi.New(bridge, registry, coord, oauthEngine, logger)

	router := server.Router()
	router.Use(middleware.NewTracingMiddleware(logger).Handler)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)

	var m *metrics.Metrics
	if metrics.Enabled() {
		m = metrics.Init("dauth-gateway")
		router.Use(middleware.MetricsMiddleware("dauth-gateway", m))
		workpool.RegisterGauges(prometheus.DefaultRegisterer, pool)
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	router.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedOrigins:         cfg.CORSOrigins,
		AllowedMethods:         []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:         []string{"Content-Type", "Authorization", "X-Trace-ID"},
		ExposedHeaders:         []string{"X-Trace-ID"},
		AllowCredentials:       true,
		MaxAgeSeconds:          3600,
		PreflightStatus:        http.StatusOK,
		RejectDisallowedOrigin: true,
	}).Handler)

	// Ciphertext bodies are small and bounded (MaxSealBytes/MaxJWTBytes); a
	// generous fixed cap still guards against a client streaming an
	// unbounded body at this public-facing gateway.
	router.Use(middleware.NewBodyLimitMiddleware(64 << 10).Handler)
	router.Use(middleware.NewTimeoutMiddleware(30 * time.Second).Handler)

	if cfg.SharedSecret == "" {
		logger.Info("Header Gate disabled (X_SHARED_SECRET not set)")
	} else {
		router.Use(middleware.HeaderGateMiddleware(cfg.SharedSecret))
	}

	addr := ":" + strconv.Itoa(cfg.GatewayPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	shutdown := middleware.NewGracefulShutdown(httpServer, 15*time.Second)
	shutdown.OnShutdown(func() {
		reaper.Stop()
	})

	go func() {
		logger.WithFields(map[string]interface{}{"addr": addr, "mode": string(bridge.Mode())}).Info("dauth gateway starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	shutdown.ListenForSignals()
	shutdown.Wait()
}
