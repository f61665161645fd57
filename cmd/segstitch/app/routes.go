// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/segstitch/segstitch/pkg/logging"
)

// Routes defines dispatches for all routes.
//
// Upload and management routes run under the configured request timeout.
// The stream route does not: relaying a long video may validly outlast it,
// and cancellation is driven by the client closing the transport.
func (s *Server) Routes(ctx context.Context) error {
	for _, route := range logging.LogRoutes {
		s.Router.MethodFunc(route.Method, route.Path, route.Handler)
	}
	s.Router.Mount("/debug", middleware.Profiler())
	s.Router.Mount("/metrics", promhttp.Handler())
	s.Router.MethodFunc("GET", "/healthz", s.healthzHandlerFunc)
	s.Router.MethodFunc("OPTIONS", "/*", s.optionsHandlerFunc)

	s.Router.Group(func(r chi.Router) {
		if s.Cfg.TimeoutS > 0 {
			r.Use(middleware.Timeout(time.Duration(s.Cfg.TimeoutS) * time.Second))
		}
		r.MethodFunc("POST", "/videos", s.uploadHandlerFunc)
		r.Route("/api", createRouteAPI(s))
	})

	s.Router.MethodFunc("GET", "/videos/{videoID}/stream", s.streamHandlerFunc)
	s.Router.MethodFunc("HEAD", "/videos/{videoID}/stream", s.streamHandlerFunc)
	// Old single-handler path kept for players that still use it.
	s.Router.MethodFunc("GET", "/getstream", s.streamQueryHandlerFunc)

	return nil
}
