// Command escrowd serves the milestone escrow engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/milestone-escrow/config"
	"github.com/bitfsorg/milestone-escrow/escrow"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/observability"
	"github.com/bitfsorg/milestone-escrow/server"
	"github.com/bitfsorg/milestone-escrow/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("escrowd", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config.toml (default <datadir>/config.toml)")
	genKey := fs.String("genkey", "", "write a new WIF key to this path, print its address and exit")
	initConfig := fs.Bool("init-config", false, "write the default config and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *genKey != "" {
		kp, err := identity.NewKeyPair()
		if err != nil {
			return err
		}
		if err := identity.SaveKeyFile(*genKey, kp); err != nil {
			return err
		}
		fmt.Fprintln(stdout, kp.Address)
		return nil
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath(config.DefaultDataDir())
	}
	if *initConfig {
		if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintln(stdout, path)
		return nil
	}

	cfg, err := loadConfig(path, *configPath != "")
	if err != nil {
		return err
	}

	logOut, closeLog, err := logWriter(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log := observability.NewLogger("escrowd", cfg.LogLevel, logOut)
	observability.RegisterMetrics()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	api, err := newAPI(cfg, st, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, api, log)
}

// loadConfig reads path. A missing file falls back to defaults unless the
// path was given explicitly.
func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, config.ErrConfigNotFound) && !explicit {
		cfg, err = config.DefaultConfig(), nil
	}
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func logWriter(cfg config.Config) (io.Writer, func(), error) {
	if cfg.LogFile == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemStore(), nil
	case config.BackendBolt:
		return store.OpenBoltStore(cfg.StorePath())
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidStoreBackend, cfg.StoreBackend)
}

// newAPI wires the engine and HTTP server for cfg.
func newAPI(cfg config.Config, st store.Store, log zerolog.Logger) (*server.Server, error) {
	program, err := cfg.Program()
	if err != nil {
		return nil, err
	}
	issuer, _, err := cfg.Issuer()
	if err != nil {
		return nil, err
	}
	engine := escrow.New(st, program, log.With().Str("component", "engine").Logger())
	return server.New(engine, server.Options{
		Issuer:        issuer,
		RequestWindow: cfg.RequestWindow,
		Logger:        log.With().Str("component", "http").Logger(),
	}), nil
}

// serve runs the API listener, and the metrics listener when configured,
// until ctx is cancelled or a listener fails.
func serve(ctx context.Context, cfg config.Config, api *server.Server, log zerolog.Logger) error {
	servers := []*http.Server{{Addr: cfg.ListenAddr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: server.MetricsHandler(), ReadHeaderTimeout: 5 * time.Second})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
