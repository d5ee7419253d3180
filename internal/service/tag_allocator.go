package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/liveboard-app/liveboard-api/internal/models"
	"github.com/liveboard-app/liveboard-api/internal/observability"
	"github.com/liveboard-app/liveboard-api/internal/repository"
)

// ErrTagSpaceExhausted is returned when every discriminator slot for a
// nickname is taken. Callers must reject the post rather than fall back to an
// arbitrary tag.
var ErrTagSpaceExhausted = errors.New("nickname tag space exhausted")

// TagAllocator assigns each (nickname, client) identity a stable small-integer
// discriminator, unique among all clients sharing the nickname.
//
// Allocation is optimistic: the deterministic starting slot is probed by
// attempting the insert, and the mapping table's uniqueness constraints, not
// an external lock, serialize concurrent claims. A rejected insert either
// means another caller settled this same identity (their tag wins) or the
// slot belongs to a different client (probing continues).
type TagAllocator struct {
	tags   repository.TagRepository
	logger zerolog.Logger

	// space is the number of discriminator slots per nickname. Production
	// always uses the full range; tests shrink it to force exhaustion.
	space int
}

// NewTagAllocator constructs an allocator over the full tag range.
func NewTagAllocator(tags repository.TagRepository, logger zerolog.Logger) *TagAllocator {
	return &TagAllocator{
		tags:   tags,
		logger: logger.With().Str("component", "tag_allocator").Logger(),
		space:  models.TagMax,
	}
}

// Resolve returns the discriminator for the given identity, allocating and
// persisting one on first contact. It is idempotent: once an identity has a
// valid tag, every subsequent call returns that same tag.
func (a *TagAllocator) Resolve(ctx context.Context, nickname, clientID string) (int, error) {
	tag, found, err := a.tags.Lookup(ctx, nickname, clientID)
	if err != nil {
		return 0, fmt.Errorf("tag lookup failed: %w", err)
	}
	if found {
		if models.ValidTag(tag) {
			observability.TagAllocations().WithLabelValues("hit").Inc()
			return tag, nil
		}

		// A malformed historical row. Never return it; clear it and
		// allocate fresh.
		if err := a.tags.Delete(ctx, nickname, clientID); err != nil {
			return 0, fmt.Errorf("failed to delete invalid tag mapping: %w", err)
		}
		a.logger.Warn().
			Str("nickname", nickname).
			Str("client_id", clientID).
			Int("stored_tag", tag).
			Msg("discarded out-of-range tag mapping")
	}

	start := a.startCandidate(clientID)

	for offset := 0; offset < a.space; offset++ {
		candidate := (start-1+offset)%a.space + 1

		inserted, err := a.tags.Insert(ctx, models.NicknameTag{
			Nickname: nickname,
			ClientID: clientID,
			Tag:      candidate,
		})
		if err != nil {
			return 0, fmt.Errorf("tag insert failed: %w", err)
		}
		if inserted {
			observability.TagAllocations().WithLabelValues("allocated").Inc()
			observability.TagProbeDepth().Observe(float64(offset + 1))
			return candidate, nil
		}

		// The insert was rejected. If a concurrent resolution of this
		// same identity won the race, its tag settles the pair.
		tag, found, err := a.tags.Lookup(ctx, nickname, clientID)
		if err != nil {
			return 0, fmt.Errorf("tag lookup failed: %w", err)
		}
		if found && models.ValidTag(tag) {
			observability.TagAllocations().WithLabelValues("settled").Inc()
			return tag, nil
		}

		// Otherwise the slot is held by another client of this nickname;
		// try the next one.
	}

	observability.TagAllocations().WithLabelValues("exhausted").Inc()
	a.logger.Error().Str("nickname", nickname).Msg("no free tag slot for nickname")
	return 0, ErrTagSpaceExhausted
}

// startCandidate derives the deterministic first slot to try from the client
// identifier alone, so the same device tends to land on the same number
// across nicknames. The hash choice only spreads identifiers; correctness
// comes from the probing loop.
func (a *TagAllocator) startCandidate(clientID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return int(h.Sum32()%uint32(a.space)) + 1
}
