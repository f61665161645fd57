// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/segstitch/segstitch/internal"
	"github.com/segstitch/segstitch/internal/segment"
	"github.com/segstitch/segstitch/internal/session"
	"github.com/segstitch/segstitch/internal/store"
	"github.com/segstitch/segstitch/pkg/logging"
)

// SetupServer sets up router, middleware, store pool, and server, given koanf configuration.
func SetupServer(ctx context.Context, cfg *ServerConfig) (*Server, error) {
	logger := logging.Default()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.SlogMiddleWare(logger))
	r.Use(middleware.Recoverer)
	r.Use(addVersionAndCORSHeaders)
	r.Use(NewPrometheusMiddleware())

	if cfg.MaxRequests > 0 {
		r.Use(NewIPRequestLimiter("Segstitch-Requests", cfg.MaxRequests,
			time.Duration(cfg.ReqLimitIntS)*time.Second))
	}

	// The stream route cannot run under a request timeout: a long video
	// legitimately takes longer to relay than any sane API timeout.
	// Routes applies the timeout to the non-streaming subrouters only.

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	// Process-wide store pool: opened here, drained in Server.Shutdown.
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open segment store: %w", err)
	}

	server := Server{
		Router: r,
		Cfg:    cfg,
		store:  st,
		segmenter: &segment.Segmenter{
			FFmpeg:    cfg.FFmpeg,
			DurationS: cfg.SegmentDurS,
			Store:     st,
			Log:       logger,
		},
		sessionCfg: session.Config{
			Store:        st,
			WorkRoot:     cfg.WorkDir,
			FFmpeg:       cfg.FFmpeg,
			FetchWorkers: cfg.FetchWorkers,
		},
	}

	if err := server.Routes(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("routes: %w", err)
	}

	groups, err := st.Groups(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("list stored videos: %w", err)
	}
	logger.Info("segment store opened", "dbpath", cfg.DBPath, "videos", len(groups))
	logger.Info("segstitch starting", "version", internal.GetVersion(), "port", cfg.Port)

	return &server, nil
}
