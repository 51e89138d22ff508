package app

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tailord/tailord/internal/artifacts"
	"github.com/tailord/tailord/internal/cache"
	"github.com/tailord/tailord/internal/config"
	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/gateway"
	"github.com/tailord/tailord/internal/httpapi"
	"github.com/tailord/tailord/internal/pipeline"
	"github.com/tailord/tailord/internal/provider"
	"github.com/tailord/tailord/internal/quota"
	"github.com/tailord/tailord/internal/render"
	"github.com/tailord/tailord/internal/store"
)

// Services holds the wired object graph for one server process.
type Services struct {
	DB           *badger.DB
	Ledger       *quota.BadgerLedger
	Sessions     *store.Store
	Gateway      *gateway.Gateway
	Fitter       *render.Fitter
	Orchestrator *pipeline.Orchestrator
	API          *httpapi.Server
}

// NewServices opens the database and wires every component from config.
func NewServices(cfg config.Config) (Services, error) {
	dbPath := filepath.Join(cfg.DataDir, "db")

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return Services{}, fmt.Errorf("open database at %s: %w", dbPath, err)
	}

	remainingCache := cache.New[core.OwnerID, int](cfg.Quota.CacheSize, cfg.QuotaCacheTTL())
	ledger := quota.NewBadgerLedger(db, cfg.Quota.DefaultBudget, remainingCache)

	sessions := store.New(db, ledger, cfg.ProcessingTimeout(), cfg.StaleGrace())

	gw := gateway.New(provider.NewOpenAIProvider(cfg.Provider, cfg.Debug), cfg.Provider)
	fitter := render.NewFitter(gw, render.NewHTTPRenderer(cfg.Renderer), cfg.Generation.TargetPages, cfg.Generation.AutoFixAttempts)

	orchestrator := &pipeline.Orchestrator{
		Gateway:  gw,
		Fitter:   fitter,
		Quota:    ledger,
		Sessions: sessions,
		Research: &pipeline.GatewayResearcher{Gateway: gw},
		Enricher: pipeline.UnconfiguredEnricher{},
		Artifacts: &artifacts.FileStore{
			BaseDir: cfg.DataDir,
			BaseURL: baseURLFromBind(cfg.Bind),
		},
		ProcessingTimeout: cfg.ProcessingTimeout(),
	}

	api := &httpapi.Server{
		Runner:            orchestrator,
		Sessions:          sessions,
		Quota:             ledger,
		Fixer:             fitter,
		DataDir:           cfg.DataDir,
		GenerationTimeout: cfg.ProcessingTimeout(),
	}

	return Services{
		DB:           db,
		Ledger:       ledger,
		Sessions:     sessions,
		Gateway:      gw,
		Fitter:       fitter,
		Orchestrator: orchestrator,
		API:          api,
	}, nil
}

// Close releases process-wide resources, the database in particular.
func (s Services) Close() error {
	return s.DB.Close()
}

// baseURLFromBind turns the listen address into the URL artifact refs are
// served under.
func baseURLFromBind(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		if strings.HasPrefix(bind, ":") {
			host, port = "", strings.TrimPrefix(bind, ":")
		} else {
			return "http://" + bind
		}
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(host, port)
}
