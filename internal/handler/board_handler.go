package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/liveboard-app/liveboard-api/internal/dto"
	"github.com/liveboard-app/liveboard-api/internal/middleware"
	"github.com/liveboard-app/liveboard-api/internal/observability"
	"github.com/liveboard-app/liveboard-api/internal/service"
	"github.com/liveboard-app/liveboard-api/internal/utils"
)

// BoardHandler exposes message posting, the recent-message window, and the
// live update streams (SSE and websocket).
type BoardHandler struct {
	service      service.BoardService
	logger       zerolog.Logger
	timeout      time.Duration
	defaultLimit int
}

// NewBoardHandler constructs a handler instance.
func NewBoardHandler(svc service.BoardService, logger zerolog.Logger, streamTimeout time.Duration, defaultLimit int) *BoardHandler {
	if streamTimeout <= 0 {
		streamTimeout = service.DefaultStreamTimeout
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}

	return &BoardHandler{
		service:      svc,
		logger:       logger.With().Str("component", "board_handler").Logger(),
		timeout:      streamTimeout,
		defaultLimit: defaultLimit,
	}
}

// Register binds the board routes.
func (h *BoardHandler) Register(router fiber.Router) {
	router.Post("/messages", h.post)
	router.Get("/messages", h.list)
	router.Get("/events", h.events)
	router.Get("/ws", h.upgrade, websocket.New(h.stream))
}

func (h *BoardHandler) post(c *fiber.Ctx) error {
	var payload dto.PostMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))

	message, err := h.service.Post(ctx, payload)
	if err != nil {
		var validationErrs validator.ValidationErrors
		switch {
		case errors.As(err, &validationErrs), errors.Is(err, service.ErrEmptyMessage):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTagSpaceExhausted):
			return utils.SendError(c, fiber.StatusConflict, "no free tag for nickname")
		default:
			h.logger.Error().Err(err).Msg("failed to post message")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to save message")
		}
	}

	return utils.SendCreated(c, "message posted", message)
}

func (h *BoardHandler) list(c *fiber.Ctx) error {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	messages, err := h.service.Recent(ctx, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list messages")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load messages")
	}

	return utils.SendSuccess(c, "messages", messages)
}

// events serves the SSE long-poll stream. Each iteration blocks in the
// notifier until the board changes or the heartbeat interval elapses; a
// failed write means the client went away and ends the loop, releasing the
// waiter without any notify.
func (h *BoardHandler) events(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(context.Background())
	lastSeen := h.service.Version()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		observability.StreamClients().Inc()
		defer func() {
			observability.StreamClients().Dec()
			cancel()
		}()

		if err := writeComment(w, "connected"); err != nil {
			return
		}

		for {
			version, timedOut := h.service.WaitForChange(ctx, lastSeen, h.timeout)
			if ctx.Err() != nil {
				return
			}

			if timedOut {
				if err := writeComment(w, "ping"); err != nil {
					return
				}
				continue
			}

			lastSeen = version
			if err := writeMessageEvent(w, dto.StreamEvent{Version: version}); err != nil {
				return
			}
		}
	})

	return nil
}

// upgrade gates the websocket route on a proper upgrade request.
func (h *BoardHandler) upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return utils.SendError(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
}

// stream serves the websocket variant of the live feed: one version frame per
// board change, pings while idle. A reader goroutine watches for the client
// closing the connection and cancels the pending wait.
func (h *BoardHandler) stream(conn *websocket.Conn) {
	observability.StreamClients().Inc()
	defer observability.StreamClients().Dec()
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSeen := h.service.Version()
	if err := conn.WriteJSON(dto.StreamEvent{Version: lastSeen}); err != nil {
		return
	}

	for {
		version, timedOut := h.service.WaitForChange(ctx, lastSeen, h.timeout)
		if ctx.Err() != nil {
			return
		}

		if timedOut {
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		lastSeen = version
		if err := conn.WriteJSON(dto.StreamEvent{Version: version}); err != nil {
			return
		}
	}
}

func writeMessageEvent(w *bufio.Writer, event dto.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeComment(w *bufio.Writer, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	return w.Flush()
}
