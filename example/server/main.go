package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/bhoriuchi/graphql-ws-server"
	"github.com/bhoriuchi/graphql-ws-server/config"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			zl := zerolog.New(os.Stderr)
			zl.Fatal().Err(err).Msg("failed to load config")
		}
	}

	logFunc := cfg.LogFunc(os.Stderr)
	l := logger.NewLogWrapper(logFunc, nil)

	schema, err := buildSchema(l)
	if err != nil {
		l.WithError(err).Errorf("failed to build schema")
		os.Exit(1)
	}

	opts, err := cfg.Options()
	if err != nil {
		l.WithError(err).Errorf("invalid config")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New()
	m.MustRegister(registry)

	srv := server.New(append(
		opts,
		server.WithSchema(*schema),
		server.WithLogFunc(logFunc),
		server.WithMetrics(m),
	)...)

	router := mux.NewRouter()
	router.Handle(cfg.Path, srv)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		l.Infof("listening on %s%s, protocols %v", cfg.Addr, cfg.Path, srv.Protocols())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.WithError(err).Errorf("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	l.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// websocket connections are hijacked, the http server does not track them
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warnf("websocket connections did not close in time")
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warnf("http server shutdown failed")
	}
}
