// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/segstitch/segstitch/pkg/logging"
)

// uploadHandlerFunc handles POST /videos: store a new video as segments.
//
// The request is a multipart form with the file in field "video".
// The video is split into fixed-duration stream-copy segments which are
// written to the blob store as one group under a fresh video id.
func (s *Server) uploadHandlerFunc(w http.ResponseWriter, r *http.Request) {
	log := logging.SubLoggerWithRequestID(logging.Default(), r)

	maxBytes := int64(s.Cfg.MaxUploadMiB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.jsonResponse(w, errorBody{Error: "invalid form data"}, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		s.jsonResponse(w, errorBody{Error: "missing video file"}, http.StatusBadRequest)
		return
	}
	defer file.Close()

	// The segmenting subprocess needs a real file to read from.
	tmp, err := os.CreateTemp("", "segstitch-in-*"+filepath.Ext(header.Filename))
	if err != nil {
		log.Error("upload staging failed", "err", err)
		s.jsonResponse(w, errorBody{Error: "could not stage upload"}, http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if clErr := tmp.Close(); err == nil {
		err = clErr
	}
	if err != nil {
		log.Error("upload staging failed", "err", err)
		s.jsonResponse(w, errorBody{Error: "could not stage upload"}, http.StatusInternalServerError)
		return
	}

	res, err := s.segmenter.StoreSegments(r.Context(), tmp.Name())
	if err != nil {
		log.Error("segmenting failed", "filename", header.Filename, "err", err)
		s.jsonResponse(w, errorBody{Error: fmt.Sprintf("could not store segments: %s", err)},
			http.StatusInternalServerError)
		return
	}
	log.Info("video stored", "videoId", res.VideoID, "segments", res.Segments,
		"filename", header.Filename)
	s.jsonResponse(w, struct {
		VideoID  string `json:"videoId"`
		Segments int    `json:"segments"`
	}{res.VideoID, res.Segments}, http.StatusCreated)
}
