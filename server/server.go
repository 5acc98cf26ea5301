// Package server provides the OpenAI-compatible chat completion HTTP server.
package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatserve/pkg/completion"
	"github.com/papercomputeco/chatserve/pkg/engine"
	"github.com/papercomputeco/chatserve/pkg/llm"
)

// Server serves chat completions generated by a single shared engine.
// It holds no per-conversation state: every request carries its full history.
type Server struct {
	config    Config
	engine    engine.Engine
	assembler *completion.Assembler
	logger    *zap.Logger
	app       *fiber.App
	started   time.Time

	// baseCtx is the parent of every generation; cancel stops them all.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new Server.
func New(config Config, eng engine.Engine, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if config.ServedModel == "" {
		config.ServedModel = "chatserve"
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:    config,
		engine:    eng,
		assembler: completion.NewAssembler(eng),
		logger:    logger,
		started:   time.Now(),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(fiberrecover.New())
	app.Use(requestLogger(logger))

	app.Post("/v1/chat/completions", s.handleChatCompletions)
	app.Get("/v1/models", s.handleModels)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "healthy"})
	})

	s.app = app

	return s, nil
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logStart(s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Listener serves on an existing listener.
func (s *Server) Listener(ln net.Listener) error {
	s.logStart(ln.Addr().String())
	return s.app.Listener(ln)
}

func (s *Server) logStart(addr string) {
	s.logger.Info("starting chat completion server",
		zap.String("listen", addr),
		zap.String("engine", s.engine.Name()),
		zap.String("served_model", s.config.ServedModel),
	)
}

// ShutdownWithContext stops accepting connections and waits for in-flight
// requests until ctx is done, then cancels any generation still running.
func (s *Server) ShutdownWithContext(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.cancel()
	return err
}

// handleModels lists the single model this server answers for.
func (s *Server) handleModels(c *fiber.Ctx) error {
	return c.JSON(llm.ModelList{
		Object: "list",
		Data: []llm.ModelCard{
			{
				ID:      s.config.ServedModel,
				Object:  "model",
				Created: s.started.Unix(),
				OwnedBy: "chatserve",
			},
		},
	})
}

// handleError renders errors that escaped a handler, including unknown
// routes and recovered panics, as JSON error bodies.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	errType := llm.ErrorTypeServer
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
		switch {
		case code == fiber.StatusNotFound:
			errType = llm.ErrorTypeNotFound
		case code < fiber.StatusInternalServerError:
			errType = llm.ErrorTypeInvalidRequest
		}
	} else {
		s.logger.Error("unhandled error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(llm.NewErrorResponse(errType, message))
}

// requestLogger logs one line per request once its handler returned. For a
// streamed response the handler returns before the body is written, so
// duration covers validation and the wait for the first fragment only; the
// completion handler logs the full stream duration itself.
func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Bool("streamed", c.Response().IsBodyStream()),
			zap.Duration("duration", time.Since(startTime)),
		)
		return err
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
