package app

import (
	"errors"
	"net/http"

	"github.com/segstitch/segstitch/internal/store"
)

var errMissingID = errors.New("video id must be provided")

// httpStatus maps a core error onto the response status for pre-stream
// failures. Mid-stream failures have no status to send anymore.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errMissingID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
