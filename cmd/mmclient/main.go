package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/matchmaking-client/internal/backend"
	"github.com/DoyleJ11/matchmaking-client/internal/config"
	"github.com/DoyleJ11/matchmaking-client/internal/criteria"
	"github.com/DoyleJ11/matchmaking-client/internal/history"
	"github.com/DoyleJ11/matchmaking-client/internal/httpapi"
	"github.com/DoyleJ11/matchmaking-client/internal/hub"
	"github.com/DoyleJ11/matchmaking-client/internal/matchmaking"
	"github.com/DoyleJ11/matchmaking-client/internal/ping"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	listen := pflag.String("listen", "", "operations HTTP listen address")
	backendURL := pflag.String("backend", "", "matchmaking backend websocket url")
	level := pflag.String("log-level", "", "log level (debug, info, warn, error)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("matchmaking client stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	hist := history.NewLog(0, log.Named("history"))
	var store *history.Store
	if cfg.HistoryDSN != "" {
		var err error
		store, err = history.Open(ctx, cfg.HistoryDSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warnw("closing history store", "error", err)
			}
		}()
		recent, err := store.Recent(ctx, 16)
		if err != nil {
			log.Warnw("reading connect history", "error", err)
		}
		slices.Reverse(recent)
		hist.Preload(recent)
	}

	initial := criteria.Defaults()
	if maps, err := criteria.LoadCasual(cfg.CriteriaFile); err != nil {
		log.Warnw("using default casual maps", "error", err)
	} else {
		initial.CasualMaps = maps
	}

	client := backend.New(backend.Options{
		URL: cfg.BackendURL,
		Header: http.Header{
			"X-Steam-Id":       {strconv.FormatUint(cfg.SteamID, 10)},
			"X-Client-Version": {strconv.FormatUint(uint64(cfg.ClientVersion), 10)},
		},
		Log: log.Named("backend"),
	})

	g, ctx := errgroup.WithContext(ctx)

	h := hub.NewHub(ctx, cfg.Orchestrator(initial), matchmaking.Deps{
		Transport: client,
		Sessions:  client,
		Measurer:  ping.NewTCPMeasurer(ctx, cfg.POPs, 0, log.Named("ping")),
		History:   hist,
		Log:       log.Named("matchmaking"),
	}, hub.Options{Tick: cfg.TickInterval, Log: log.Named("hub")})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.SetupRoutes(h, log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error { return client.Run(ctx, h) })
	g.Go(func() error {
		log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if store != nil {
		g.Go(func() error { return store.Run(ctx, hist.Sink(), log.Named("history")) })
	}

	log.Infow("matchmaking client started", "steam_id", cfg.SteamID, "backend", cfg.BackendURL)
	return g.Wait()
}
