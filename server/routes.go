// Package server exposes the restoration engine over a local HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/panam-dodia/NeuralLense/api"
	"github.com/panam-dodia/NeuralLense/backend"
	"github.com/panam-dodia/NeuralLense/envconfig"
	"github.com/panam-dodia/NeuralLense/restore"
	"github.com/panam-dodia/NeuralLense/version"
)

// Restorer is the part of restore.Session the routes need.
type Restorer interface {
	Restore(ctx context.Context, req restore.Request) (image.Image, error)
	State() restore.State
}

type Server struct {
	engine Restorer
}

func New(engine Restorer) *Server {
	return &Server{engine: engine}
}

// GenerateRoutes builds the HTTP handler.
func (s *Server) GenerateRoutes() http.Handler {
	if !envconfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "NeuralLense is running")
	})
	r.HEAD("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version})
	})
	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": s.engine.State().String()})
	})
	r.POST("/api/restore", s.RestoreHandler)

	return r
}

func (s *Server) RestoreHandler(c *gin.Context) {
	var req api.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	if req.Image == "" {
		abortError(c, http.StatusBadRequest, errors.New("image is required"))
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		abortError(c, http.StatusBadRequest, fmt.Errorf("image is not valid base64: %w", err))
		return
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		abortError(c, http.StatusBadRequest, fmt.Errorf("undecodable image: %w", err))
		return
	}

	if req.Steps == 0 {
		req.Steps = envconfig.DefaultSteps
	}
	if req.MaxDimension == 0 {
		req.MaxDimension = envconfig.MaxDimension
	}
	if req.Seed == 0 {
		req.Seed = rand.Uint64()
	}

	requestID := uuid.New().String()
	slog.Info("restore request",
		"id", requestID,
		"size", img.Bounds().Size(),
		"steps", req.Steps,
		"max_dimension", req.MaxDimension)

	if req.Stream != nil && !*req.Stream {
		resp, err := s.restore(c.Request.Context(), img, req, nil)
		if err != nil {
			abortError(c, errorStatus(err), err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	// Every send races the client going away: once the client disconnects,
	// streamResponse stops receiving, and an unguarded send would wedge the
	// engine's single restoration slot for good.
	ctx := c.Request.Context()
	ch := make(chan any)
	go func() {
		defer close(ch)
		resp, err := s.restore(ctx, img, req, func(completed, total int, message string) {
			select {
			case ch <- api.ProgressResponse{Status: message, Completed: completed, Total: total}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			slog.Error("restore failed", "id", requestID, "error", err)
			select {
			case ch <- api.Error{Code: int32(errorStatus(err)), Message: err.Error()}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ch <- resp:
		case <-ctx.Done():
		}
	}()

	streamResponse(c, ch)
}

func (s *Server) restore(ctx context.Context, img image.Image, req api.RestoreRequest, progress func(int, int, string)) (api.RestoreResponse, error) {
	start := time.Now()
	out, err := s.engine.Restore(ctx, restore.Request{
		Image:        img,
		Steps:        req.Steps,
		MaxDimension: req.MaxDimension,
		Seed:         req.Seed,
		Progress:     progress,
	})
	if err != nil {
		return api.RestoreResponse{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return api.RestoreResponse{}, fmt.Errorf("encode result: %w", err)
	}

	return api.RestoreResponse{
		Status:        "success",
		Image:         base64.StdEncoding.EncodeToString(buf.Bytes()),
		Seed:          req.Seed,
		TotalDuration: time.Since(start),
	}, nil
}

// errorStatus maps the engine's error taxonomy onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, restore.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, restore.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, restore.ErrNotReady), errors.Is(err, restore.ErrReleased):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrOutOfMemory):
		return http.StatusInsufficientStorage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func abortError(c *gin.Context, code int, err error) {
	c.JSON(code, api.Error{Code: int32(code), Message: err.Error()})
}

func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Error("streaming marshal failed", "error", err)
			return false
		}

		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Error("streaming write failed", "error", err)
			return false
		}

		return true
	})
}

// Serve runs the API on ln until the listener closes.
func Serve(ln net.Listener, engine Restorer) error {
	slog.Info("listening", "addr", ln.Addr(), "version", version.Version)
	srv := &http.Server{Handler: New(engine).GenerateRoutes()}
	return srv.Serve(ln)
}
