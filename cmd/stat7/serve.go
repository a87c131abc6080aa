package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stat7/core"
	"stat7/internal/api"
	"stat7/pkg/config"
)

func serveCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the STAT7 admission and retrieval HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment name (dev, staging, prod)")
	return cmd
}

func runServer(cfg *config.Config) error {
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&logrus.JSONFormatter{})

	bitchains, err := core.NewBitChainStore(filepath.Join(cfg.Storage.DataDir, "bitchains"))
	if err != nil {
		return err
	}
	journey, err := core.NewJourneyLog(filepath.Join(cfg.Storage.DataDir, "journey"))
	if err != nil {
		return err
	}
	policy, err := core.NewPolicySet(filepath.Join(cfg.Storage.DataDir, "policy"))
	if err != nil {
		return err
	}
	for requester, grants := range cfg.Stat7.PolicySet {
		for _, grant := range grants {
			realm, polarity, ok := splitGrant(grant)
			if !ok {
				continue
			}
			if err := policy.Grant(requester, realm, polarity); err != nil {
				return err
			}
		}
	}
	auth := core.NewStaticAuthenticator(cfg.Stat7.AuthTokens)

	gate := core.NewCollapseGate(cfg.Stat7.WFCIterations)
	conservator := core.NewConservator(gate, core.DefaultRepairActions())
	recovery := core.NewRecoveryGate(auth, policy, journey, nil)

	local := core.NewLocalProvider(cfg.Stat7.EmbeddingDim, 7)
	provider := core.NewDegradingProvider(local, local, 2, 50*time.Millisecond, log)

	anchors, err := core.NewAnchorGraph(
		filepath.Join(cfg.Storage.DataDir, "anchors"),
		provider,
		cfg.Stat7.ThetaMerge,
		cfg.Stat7.ThetaEdge,
		cfg.Stat7.HeatDecayLambda,
	)
	if err != nil {
		return err
	}

	retrieval, err := core.NewRetrievalEngine(
		anchors,
		bitchains,
		provider,
		core.DefaultConflictDetector,
		time.Duration(cfg.Stat7.CacheTTLSeconds)*time.Second,
		1024,
	)
	if err != nil {
		return err
	}

	limiter := core.NewRateLimiter(cfg.Stat7.RateLimits.RequestsPerSecond, cfg.Stat7.RateLimits.Burst)

	health, err := core.NewHealthLogger(cfg.Logging.File)
	if err != nil {
		return err
	}
	defer health.Close()

	orchestrator := core.NewOrchestrator(gate, conservator, recovery, bitchains, anchors, provider, journey, health, limiter)

	router := api.NewRouter(api.Controllers{
		Admission: api.NewAdmissionController(orchestrator),
		Retrieval: api.NewRetrievalController(retrieval),
		Anchor:    api.NewAnchorController(anchors),
		Journey:   api.NewJourneyController(journey),
		Health:    health,
	}, log)

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("stat7 listening on %s", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// splitGrant parses "realm:polarity" grant entries from config.
func splitGrant(grant string) (core.Realm, core.Polarity, bool) {
	for i := 0; i < len(grant); i++ {
		if grant[i] == ':' {
			return core.Realm(grant[:i]), core.Polarity(grant[i+1:]), true
		}
	}
	return "", "", false
}
