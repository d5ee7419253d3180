package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/liveboard-app/liveboard-api/internal/dto"
	"github.com/liveboard-app/liveboard-api/internal/models"
	"github.com/liveboard-app/liveboard-api/internal/observability"
	"github.com/liveboard-app/liveboard-api/internal/repository"
)

// ErrEmptyMessage indicates the content contained nothing displayable after
// sanitization.
var ErrEmptyMessage = errors.New("message content empty after sanitization")

// BoardService accepts posts and serves the recent-message window, bumping
// the live notifier after every accepted message.
type BoardService interface {
	Post(ctx context.Context, payload dto.PostMessageRequest) (dto.MessageResponse, error)
	Recent(ctx context.Context, limit int) ([]dto.MessageResponse, error)
	WaitForChange(ctx context.Context, lastSeen uint64, timeout time.Duration) (uint64, bool)
	Version() uint64
}

type boardService struct {
	messages  repository.MessageRepository
	allocator *TagAllocator
	notifier  *LiveNotifier
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewBoardService constructs the board service. The cache client may be nil,
// in which case every read goes to the store.
func NewBoardService(messages repository.MessageRepository, allocator *TagAllocator, notifier *LiveNotifier, cache *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) BoardService {
	return &boardService{
		messages:  messages,
		allocator: allocator,
		notifier:  notifier,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "board_service").Logger(),
		tracer:    otel.Tracer("github.com/liveboard-app/liveboard-api/internal/service/board"),
		now:       time.Now,
	}
}

// Post resolves the sender's tag, persists the message, and wakes live
// readers. The tag is resolved first: a message row is never inserted with an
// unresolved tag, and any failure rejects the whole submission.
func (s *boardService) Post(ctx context.Context, payload dto.PostMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	nickname := strings.TrimSpace(s.sanitizer.Sanitize(payload.Nickname))
	if nickname == "" {
		nickname = LegacyNickname
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.MessageResponse{}, ErrEmptyMessage
	}

	spanCtx, span := s.tracer.Start(ctx, "board.post", trace.WithAttributes(
		attribute.String("board.nickname", nickname),
		attribute.Int("board.content_length", len(content)),
	))
	defer span.End()

	tag, err := s.allocator.Resolve(spanCtx, nickname, payload.ClientID)
	if err != nil {
		span.RecordError(err)
		observability.PostFailures().WithLabelValues(failureReason(err)).Inc()
		return dto.MessageResponse{}, err
	}

	now := s.now()
	message := models.Message{
		Content:   content,
		Timestamp: now.Format("2006-01-02 15:04:05"),
		Nickname:  nickname,
		ClientID:  payload.ClientID,
		UserTag:   tag,
		CreatedAt: now.Unix(),
	}

	if err := s.messages.Insert(spanCtx, &message); err != nil {
		span.RecordError(err)
		observability.PostFailures().WithLabelValues("store").Inc()
		return dto.MessageResponse{}, fmt.Errorf("failed to store message: %w", err)
	}

	s.notifier.Notify()
	observability.MessagesPosted().Inc()

	s.logger.Info().
		Str("nickname", nickname).
		Int("tag", tag).
		Int("content_length", len(content)).
		Msg("message posted")

	return dto.NewMessageResponse(message), nil
}

// Recent returns the newest limit messages, oldest first. Results are cached
// under the current notifier version, so any accepted post naturally
// invalidates the cached window.
func (s *boardService) Recent(ctx context.Context, limit int) ([]dto.MessageResponse, error) {
	cacheKey := fmt.Sprintf("board:recent:v%d:%d", s.notifier.Version(), limit)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var responses []dto.MessageResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &responses); unmarshalErr == nil {
				return responses, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read recent-messages cache")
		}
	}

	messages, err := s.messages.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	responses := dto.NewMessageResponseSlice(messages)

	if s.cache != nil {
		if payload, err := json.Marshal(responses); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store recent-messages cache")
			}
		}
	}

	return responses, nil
}

func (s *boardService) WaitForChange(ctx context.Context, lastSeen uint64, timeout time.Duration) (uint64, bool) {
	return s.notifier.Wait(ctx, lastSeen, timeout)
}

func (s *boardService) Version() uint64 {
	return s.notifier.Version()
}

func failureReason(err error) string {
	if errors.Is(err, ErrTagSpaceExhausted) {
		return "tag_space_exhausted"
	}
	return "allocator"
}
