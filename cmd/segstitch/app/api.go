package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/segstitch/segstitch/internal/store"
)

// VideoSummary is one stored video in the listing.
type VideoSummary struct {
	VideoID   string `json:"videoId" doc:"Video group id"`
	Segments  int    `json:"segments" doc:"Number of stored segments"`
	SizeBytes int64  `json:"sizeBytes" doc:"Total stored media bytes"`
}

type VideoListResponse struct {
	Body struct {
		Videos []VideoSummary `json:"videos"`
	}
}

// SegmentInfo is one segment of a video.
type SegmentInfo struct {
	ObjectID   string `json:"objectId" doc:"Store-assigned segment id"`
	Ordinal    int    `json:"ordinal" doc:"Playback position, ascending from 0"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"sizeBytes"`
	ChunkCount int    `json:"chunkCount"`
}

type VideoInfoResponse struct {
	Body struct {
		VideoID  string        `json:"videoId"`
		Segments []SegmentInfo `json:"segments"`
	}
}

type VideoDeleteResponse struct {
	Body struct {
		VideoID string `json:"videoId"`
		Deleted bool   `json:"deleted"`
	}
}

type videoIDInput struct {
	ID string `path:"id" maxLength:"64" example:"1700000000000" doc:"Video group id"`
}

func createListVideosHdlr(s *Server) func(ctx context.Context, input *struct{}) (*VideoListResponse, error) {
	return func(ctx context.Context, input *struct{}) (*VideoListResponse, error) {
		groups, err := s.store.Groups(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("could not list videos")
		}
		resp := &VideoListResponse{}
		resp.Body.Videos = make([]VideoSummary, 0, len(groups))
		for _, g := range groups {
			resp.Body.Videos = append(resp.Body.Videos, VideoSummary{
				VideoID:   g.GroupID,
				Segments:  g.Segments,
				SizeBytes: g.SizeBytes,
			})
		}
		return resp, nil
	}
}

func createGetVideoInfoHdlr(s *Server) func(ctx context.Context, input *videoIDInput) (*VideoInfoResponse, error) {
	return func(ctx context.Context, input *videoIDInput) (*VideoInfoResponse, error) {
		segs, err := s.store.ObjectsByGroup(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("could not read video")
		}
		if len(segs) == 0 {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		resp := &VideoInfoResponse{}
		resp.Body.VideoID = input.ID
		for _, m := range segs {
			resp.Body.Segments = append(resp.Body.Segments, SegmentInfo{
				ObjectID:   m.ObjectID,
				Ordinal:    m.Ordinal,
				Filename:   m.Filename,
				SizeBytes:  m.SizeBytes,
				ChunkCount: m.ChunkCount,
			})
		}
		return resp, nil
	}
}

func createDeleteVideoHdlr(s *Server) func(ctx context.Context, input *videoIDInput) (*VideoDeleteResponse, error) {
	return func(ctx context.Context, input *videoIDInput) (*VideoDeleteResponse, error) {
		err := s.store.DeleteGroup(ctx, input.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("could not delete video")
		}
		resp := &VideoDeleteResponse{}
		resp.Body.VideoID = input.ID
		resp.Body.Deleted = true
		return resp, nil
	}
}

func createRouteAPI(s *Server) func(r chi.Router) {
	return func(r chi.Router) {
		config := huma.DefaultConfig("Segstitch management API", "1.0.0")
		config.Servers = []*huma.Server{
			{URL: "/api"},
		}
		config.Info.Description = `Management access to the segment store: list stored videos,
		inspect a video's segment set, and delete videos.`

		api := humachi.New(r, config)

		huma.Register(api, huma.Operation{
			OperationID: "list-videos",
			Method:      http.MethodGet,
			Path:        "/videos",
			Summary:     "List stored videos",
			Tags:        []string{"videos"},
		}, createListVideosHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "get-video",
			Method:      http.MethodGet,
			Path:        "/videos/{id}",
			Summary:     "Get a video's segment set",
			Description: "List the stored segments of one video, ordered by ordinal.",
			Tags:        []string{"videos"},
			Errors:      []int{404},
		}, createGetVideoInfoHdlr(s))

		huma.Register(api, huma.Operation{
			OperationID: "delete-video",
			Method:      http.MethodDelete,
			Path:        "/videos/{id}",
			Summary:     "Delete a video and all its segments",
			Tags:        []string{"videos"},
			Errors:      []int{404},
		}, createDeleteVideoHdlr(s))
	}
}
