// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/segstitch/segstitch/internal/segment"
	"github.com/segstitch/segstitch/internal/session"
	"github.com/segstitch/segstitch/internal/store"
)

type Server struct {
	Router     *chi.Mux
	Cfg        *ServerConfig
	store      store.Store
	segmenter  *segment.Segmenter
	sessionCfg session.Config
}

// Shutdown drains the store connection pool. Call once when the HTTP
// server has stopped.
func (s *Server) Shutdown() {
	if err := s.store.Close(); err != nil {
		slog.Error("store close failed", "err", err)
	}
}

func (s *Server) healthzHandlerFunc(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, true, http.StatusOK)
}

// jsonResponse marshals message and give response with code
//
// Don't add any more content after this since Content-Length is set
func (s *Server) jsonResponse(w http.ResponseWriter, message any, code int) {
	raw, err := json.Marshal(message)
	if err != nil {
		http.Error(w, fmt.Sprintf("{message: \"%s\"}", err), http.StatusInternalServerError)
		slog.Error(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(code)
	_, err = w.Write(raw)
	if err != nil {
		slog.Error("could not write HTTP response", "err", err)
	}
}
