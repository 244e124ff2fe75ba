// Package main is the entry point for the trapgate deception service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trapgate/internal/config"
	"trapgate/internal/gateway"
	"trapgate/internal/mdns"
	"trapgate/internal/mirror"
	"trapgate/internal/opsapi"
	"trapgate/internal/profile"
	"trapgate/internal/store"
	storages3 "trapgate/internal/store/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ident, err := profile.Select(cfg.Identity)
	if err != nil {
		slog.Error("failed to select identity", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"identity", ident.Name,
		"gateway_port", cfg.Gateway.Port,
		"mdns_enabled", cfg.MDNS.Enabled,
		"ops_enabled", cfg.Ops.Enabled,
		"data_dir", cfg.Store.Dir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Attack record store
	st, err := store.Open(store.Config{
		Dir:            cfg.Store.Dir,
		WindowCapacity: cfg.Store.WindowCapacity,
		ReloadDays:     cfg.Store.ReloadDays,
	})
	if err != nil {
		slog.Error("failed to open attack record store", "error", err)
		os.Exit(1)
	}
	st.WithLogger(logger)

	// Optional Redis live mirror
	var pub *mirror.Publisher
	if cfg.Mirror.Enabled {
		pub, err = mirror.NewPublisher(ctx, cfg.Mirror.Address, cfg.Mirror.Password, cfg.Mirror.DB, ident.Slug, logger)
		if err != nil {
			// A dead mirror must not keep the decoy offline.
			slog.Warn("redis mirror unavailable, continuing without it", "error", err)
		} else {
			st.WithPublisher(pub)
		}
	}

	// Optional S3 archival of pruned daily logs
	if cfg.Store.Archive.Enabled {
		archiver, err := storages3.NewArchiver(ctx, storages3.Config{
			Region:          cfg.Store.Archive.Region,
			Bucket:          cfg.Store.Archive.Bucket,
			Prefix:          cfg.Store.Archive.Prefix + ident.Slug + "/",
			Endpoint:        cfg.Store.Archive.Endpoint,
			AccessKeyID:     cfg.Store.Archive.AccessKeyID,
			SecretAccessKey: cfg.Store.Archive.SecretAccessKey,
			UsePathStyle:    cfg.Store.Archive.UsePathStyle,
		}, logger)
		if err != nil {
			slog.Warn("s3 archiver unavailable, pruned logs will be deleted without archival", "error", err)
		} else {
			st.WithArchiver(archiver)
		}
	}

	go st.RunRetention(ctx, cfg.Store.RetentionDays, cfg.Store.PruneInterval)

	// Gateway: the attacker-facing HTTP/WebSocket surface. A bind failure
	// is fatal; a decoy with no visible surface must not run silently.
	gw := gateway.NewServer(ident, st, gateway.Options{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		MaxBodyBytes: cfg.Gateway.MaxBodyBytes,
	}, logger)
	go func() {
		if err := gw.Start(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	}()

	// mDNS responder: degrades when the port is taken (an OS daemon such
	// as avahi usually owns it), keeping the HTTP/WS surfaces up.
	var responder *mdns.Server
	if cfg.MDNS.Enabled {
		responder = mdns.NewServer(ident, st, cfg.MDNS.Port, logger)
		if err := responder.Start(); err != nil {
			slog.Warn("mdns responder disabled", "error", err)
			responder = nil
		}
	}

	// Operator read API on its own bind.
	var ops *opsapi.Server
	if cfg.Ops.Enabled {
		ops = opsapi.NewServer(st, cfg.Ops.Host, cfg.Ops.Port, logger)
		go func() {
			if err := ops.Start(); err != nil {
				slog.Warn("operator api failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown error", "error", err)
	}
	if ops != nil {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			slog.Error("operator api shutdown error", "error", err)
		}
	}
	if responder != nil {
		responder.Stop()
	}
	cancel()
	if pub != nil {
		if err := pub.Close(); err != nil {
			slog.Error("redis mirror close error", "error", err)
		}
	}

	stats := st.Stats()
	slog.Info("shutdown complete",
		"http_requests", stats.TotalHTTPRequests,
		"ws_connections", stats.TotalWSConnections,
		"ws_messages", stats.TotalWSMessages,
		"mdns_queries", stats.TotalMDNSQueries,
		"unique_ips", stats.UniqueIPs,
	)
}

// setupLogger builds the process logger from config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
