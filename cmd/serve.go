package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/server"
	"github.com/desertthunder/scorebook/internal/shared"
)

// serverOptions merges the serve flags over the [server] config section.
func (r *Runner) serverOptions(cmd *cli.Command) (shared.ServerConfig, error) {
	cfg := r.config.Server
	if v := cmd.String("host"); v != "" {
		cfg.Host = v
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if v := cmd.String("upstream"); v != "" {
		cfg.Upstream = v
	}
	if v := cmd.String("static"); v != "" {
		cfg.StaticDir = v
	}
	if v := cmd.String("media"); v != "" {
		cfg.MediaDir = v
	}
	if v := cmd.String("redis"); v != "" {
		cfg.RedisURL = v
	}
	if cmd.IsSet("trust-proxy") {
		cfg.TrustProxy = cmd.Bool("trust-proxy")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("%w: port %d out of range", shared.ErrInvalidArgument, cfg.Port)
	}
	return cfg, nil
}

// Serve runs the hosting server until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.serverOptions(cmd)
	if err != nil {
		return err
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := server.Options{
		Upstream:       cfg.Upstream,
		StaticDir:      cfg.StaticDir,
		MediaDir:       cfg.MediaDir,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		TrustProxy:     cfg.TrustProxy,
		CacheTTL:       cfg.CatalogueTTLDuration(),
		Registry:       r.registry,
		Logger:         shared.WithLogger(r.logger, "component", "server"),
	}

	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		cache, err := server.NewRedisCache(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			r.logger.Warn("catalogue cache disabled", "err", err)
		} else {
			defer cache.Close()
			opts.Cache = cache
			r.logger.Info("catalogue cache enabled", "ttl", opts.CacheTTL)
		}
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	addr := cfg.Addr()
	if cmd.Bool("open") {
		go func() {
			time.Sleep(300 * time.Millisecond)
			if err := shared.OpenBrowser("http://" + addr); err != nil {
				r.logger.Warn("failed to open browser", "err", err)
			}
		}()
	}

	r.writePlain("Serving on http://%s (api → %s)\n", addr, cfg.Upstream)
	return srv.ListenAndServe(ctx, addr)
}
