package server

import (
	"bufio"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatserve/pkg/bridge"
	"github.com/papercomputeco/chatserve/pkg/completion"
	"github.com/papercomputeco/chatserve/pkg/engine"
	"github.com/papercomputeco/chatserve/pkg/llm"
)

// idPrefix prefixes every chat completion id.
const idPrefix = "chatcmpl-"

// handleChatCompletions validates the request and answers it either with a
// single JSON completion or with a server-sent event stream of chunks.
func (s *Server) handleChatCompletions(c *fiber.Ctx) error {
	startTime := time.Now()

	req, err := llm.ParseChatCompletionRequest(c.Body())
	if err != nil {
		var verr *llm.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		s.logger.Debug("rejected chat completion request", zap.Error(verr))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(llm.ErrorResponse{
			Error: llm.ErrorDetail{
				Message: verr.Error(),
				Type:    llm.ErrorTypeInvalidRequest,
				Fields:  verr.Fields,
			},
		})
	}

	id := idPrefix + uuid.NewString()

	s.logger.Debug("received chat completion request",
		zap.String("id", id),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Stream),
	)

	if req.Stream {
		return s.handleStreamingCompletion(c, id, req, startTime)
	}
	return s.handleNonStreamingCompletion(c, id, req, startTime)
}

// handleNonStreamingCompletion generates the whole completion before replying.
func (s *Server) handleNonStreamingCompletion(c *fiber.Ctx, id string, req *llm.ChatCompletionRequest, startTime time.Time) error {
	ctx, cancel := s.generationContext()
	defer cancel()

	resp, err := s.assembler.Assemble(ctx, id, req)
	if err != nil {
		s.logger.Error("generation failed",
			zap.String("id", id),
			zap.String("engine", s.engine.Name()),
			zap.Error(err),
		)
		return generationError(c, err)
	}

	s.logger.Debug("completion generated",
		zap.String("id", id),
		zap.String("content_preview", truncate(resp.Choices[0].Message.Content, 100)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(startTime)),
	)

	return c.JSON(resp)
}

// handleStreamingCompletion runs the generation on a worker and relays its
// fragments as chunks. Headers are only committed once the first fragment
// arrived, so a generation that fails before producing anything is still
// answered with a plain error response.
func (s *Server) handleStreamingCompletion(c *fiber.Ctx, id string, req *llm.ChatCompletionRequest, startTime time.Time) error {
	ctx, cancel := s.generationContext()

	engineReq := engine.NewRequest(req)
	stream := bridge.Start(ctx,
		func(ctx context.Context, emit engine.StreamHandler) error {
			return s.engine.GenerateStream(ctx, engineReq, emit)
		},
		bridge.WithBuffer(s.config.StreamBuffer),
		bridge.WithLogger(s.logger.With(zap.String("id", id))),
	)

	primed, err := completion.Prime(stream)
	if err != nil {
		stream.Close()
		cancel()
		s.logger.Error("generation failed before first fragment",
			zap.String("id", id),
			zap.String("engine", s.engine.Name()),
			zap.Error(err),
		)
		return generationError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	framer := completion.NewFramer(id, req.Model)
	logger := s.logger

	// The fiber context is released once this handler returns; the stream
	// writer must only touch values captured here.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer primed.Close()

		chunks, err := framer.Pump(w, primed)
		if err != nil {
			if errors.Is(err, completion.ErrGeneration) {
				logger.Error("generation failed mid-stream",
					zap.String("id", id),
					zap.Int("chunks", chunks),
					zap.Error(err),
				)
			} else {
				logger.Warn("client went away during stream",
					zap.String("id", id),
					zap.Int("chunks", chunks),
					zap.Error(err),
				)
			}
			return
		}

		logger.Debug("streaming complete",
			zap.String("id", id),
			zap.Int("chunks", chunks),
			zap.Duration("duration", time.Since(startTime)),
		)
	}))

	return nil
}

// generationContext derives the context of one generation from the server's
// base context, bounded by the configured generation timeout.
func (s *Server) generationContext() (context.Context, context.CancelFunc) {
	if s.config.GenerationTimeout > 0 {
		return context.WithTimeout(s.baseCtx, s.config.GenerationTimeout)
	}
	return context.WithCancel(s.baseCtx)
}

func generationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(
		llm.NewErrorResponse(llm.ErrorTypeGeneration, err.Error()),
	)
}
