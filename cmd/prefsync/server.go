package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mkraev/prefsync/internal/api"
	"github.com/mkraev/prefsync/internal/broadcast"
	"github.com/mkraev/prefsync/internal/config"
	"github.com/mkraev/prefsync/internal/host"
	"github.com/mkraev/prefsync/internal/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the prefsync daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// openStores probes the host for usable storage. The file-based fallback
// always opens; the synchronized stores depend on the configured mode and
// on whether their databases can actually be opened. Probe failures in
// auto mode are logged and demote to the next backend in line.
func openStores(cfg config.Config) (settings.Capabilities, *host.EnvFile, func(), error) {
	local, err := host.OpenEnvFile(cfg.Storage.DataDir)
	if err != nil {
		return settings.Capabilities{}, nil, nil, fmt.Errorf("opening local store: %w", err)
	}
	caps := settings.Capabilities{Local: local}

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing store", "error", err)
			}
		}
	}

	forced, auto, err := settings.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return settings.Capabilities{}, nil, nil, err
	}

	openPrimary := func() error {
		s, err := host.OpenSQLite(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		caps.Primary = s
		closers = append(closers, s.Close)
		return nil
	}
	openSecondary := func() error {
		b, err := host.OpenBolt(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		caps.Secondary = b
		closers = append(closers, b.Close)
		return nil
	}

	switch {
	case auto:
		if err := openPrimary(); err != nil {
			slog.Warn("primary store unavailable, probing secondary", "error", err)
			if err := openSecondary(); err != nil {
				slog.Warn("secondary store unavailable, using local fallback", "error", err)
			}
		}
	case forced == settings.BackendPrimary:
		if err := openPrimary(); err != nil {
			return settings.Capabilities{}, nil, nil, fmt.Errorf("opening primary store: %w", err)
		}
	case forced == settings.BackendSecondary:
		if err := openSecondary(); err != nil {
			return settings.Capabilities{}, nil, nil, fmt.Errorf("opening secondary store: %w", err)
		}
	case forced == settings.BackendLocal:
		// Nothing beyond the fallback.
	}

	return caps, local, cleanup, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "prefsync version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caps, local, cleanup, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	store := settings.New(caps)
	slog.Info("storage backend resolved", "backend", store.Backend())

	// Fan normalized change events out to connected clients.
	hub := broadcast.NewHub()
	store.AddListener(func(changes settings.Changes, namespace string) {
		hub.Send(broadcast.NewMessage(changes, namespace))
	})

	debounced := settings.NewDebouncer(cfg.DebounceInterval(),
		func(items map[string]any) error {
			return store.Set(context.Background(), items)
		},
		func(err error) {
			slog.Error("debounced write failed", "error", err)
		})

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Debounced: debounced,
		Events:    hub,
		Token:     cfg.Auth.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// The fallback's native events only flow while the file watcher runs,
	// so start it only when the fallback is the resolved backend.
	if store.Backend() == settings.BackendLocal {
		g.Go(func() error {
			if err := local.Watch(gCtx); err != nil {
				return fmt.Errorf("local store watcher: %w", err)
			}
			return nil
		})
	}

	if cfg.Server.MCPEnabled {
		mcpSrv := api.NewMCPServer(api.Deps{Store: store, Debounced: debounced, Events: hub}, version)
		stdio := mcpserver.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdio.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		slog.Info("prefsync listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
