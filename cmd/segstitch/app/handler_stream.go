// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/segstitch/segstitch/internal/session"
	"github.com/segstitch/segstitch/pkg/logging"
)

// streamHandlerFunc handles GET /videos/{videoID}/stream.
//
// It runs one stream session: resolve the segment set, fetch the
// segments, remux, and relay the fragmented MP4 as it is produced.
// Errors before the first output byte give a structured error response;
// later errors can only truncate the stream.
func (s *Server) streamHandlerFunc(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, chi.URLParam(r, "videoID"))
}

// streamQueryHandlerFunc serves the old /getstream?id=... form.
func (s *Server) streamQueryHandlerFunc(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, r.URL.Query().Get("id"))
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, videoID string) {
	log := logging.SubLoggerWithRequestID(logging.Default(), r)
	if videoID == "" {
		s.jsonResponse(w, errorBody{Error: errMissingID.Error()}, httpStatus(errMissingID))
		return
	}

	sess, err := session.New(s.sessionCfg, videoID, log)
	if err != nil {
		log.Error("session setup failed", "err", err)
		s.jsonResponse(w, errorBody{Error: "could not start stream session"}, http.StatusInternalServerError)
		return
	}
	defer sess.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	fw := &flushWriter{w: w, rc: http.NewResponseController(w)}
	err = sess.Serve(r.Context(), fw)
	if err == nil {
		return
	}
	err = session.Classify(r.Context(), err)
	if errors.Is(err, session.ErrCancelled) {
		log.Info("stream cancelled by client")
		return
	}
	if fw.n == 0 {
		// Nothing sent yet: a structured error response is still possible.
		s.jsonResponse(w, errorBody{Error: errorMessage(videoID, err)}, httpStatus(err))
		return
	}
	// Mid-stream failure: the client sees transport-level truncation.
	log.Error("stream aborted mid-relay", "bytesSent", fw.n, "err", err)
}

type errorBody struct {
	Error string `json:"error"`
}

func errorMessage(videoID string, err error) string {
	if httpStatus(err) == http.StatusNotFound {
		return fmt.Sprintf("no video found for id: %s", videoID)
	}
	return err.Error()
}

// flushWriter flushes after every write so output fragments reach the
// client as the pipeline produces them, and counts bytes written.
type flushWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
	n  int64
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.n += int64(n)
	if n > 0 {
		if fErr := fw.rc.Flush(); fErr != nil && err == nil {
			err = fErr
		}
	}
	return n, err
}
