package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liveboard-app/liveboard-api/internal/models"
	"github.com/liveboard-app/liveboard-api/internal/repository"
)

// Placeholder identity values for rows written before nickname and client
// identifier were separate columns.
const (
	LegacyNickname = "anon"
	LegacyClientID = "legacy"
)

// LegacyMigrator repairs historical message data once per process start.
// It runs single-threaded before the server accepts traffic, so it needs no
// locking, but it must finish before the allocator and notifier see requests.
type LegacyMigrator struct {
	messages  repository.MessageRepository
	allocator *TagAllocator
	tags      repository.TagRepository
	logger    zerolog.Logger
}

// NewLegacyMigrator constructs the startup migrator.
func NewLegacyMigrator(messages repository.MessageRepository, tags repository.TagRepository, allocator *TagAllocator, logger zerolog.Logger) *LegacyMigrator {
	return &LegacyMigrator{
		messages:  messages,
		allocator: allocator,
		tags:      tags,
		logger:    logger.With().Str("component", "legacy_migrator").Logger(),
	}
}

// Run executes the migration passes in order. Store failures while rebuilding
// the mapping table are fatal; failures repairing individual rows are logged
// and skipped.
func (m *LegacyMigrator) Run(ctx context.Context) error {
	if err := m.messages.NormalizeIdentityDefaults(ctx); err != nil {
		return fmt.Errorf("failed to normalize identity defaults: %w", err)
	}

	m.backfillKnownPairs(ctx)

	if err := m.rebuildMappings(ctx); err != nil {
		return err
	}

	if err := m.messages.RepairTagsFromMappings(ctx, models.TagMin); err != nil {
		return fmt.Errorf("failed to repair message tags: %w", err)
	}

	m.unbundleLegacyRows(ctx)

	m.logger.Info().Msg("legacy migration complete")
	return nil
}

// backfillKnownPairs ensures each identity already present in the message
// table has a mapping and that its rows carry the mapped tag. Individual
// identities that fail here are picked up again by the rebuild pass.
func (m *LegacyMigrator) backfillKnownPairs(ctx context.Context) {
	pairs, err := m.messages.DistinctIdentityPairs(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not list identity pairs for backfill")
		return
	}

	for _, pair := range pairs {
		tag, err := m.allocator.Resolve(ctx, pair.Nickname, pair.ClientID)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("nickname", pair.Nickname).
				Str("client_id", pair.ClientID).
				Msg("skipping backfill for identity")
			continue
		}

		if err := m.messages.BackfillTag(ctx, pair.Nickname, pair.ClientID, tag); err != nil {
			m.logger.Warn().Err(err).
				Str("nickname", pair.Nickname).
				Msg("failed to backfill tag for identity")
		}
	}
}

// rebuildMappings wipes the mapping table and reallocates every identity in
// lexicographic order, eliminating any stale or duplicate mappings that
// accumulated before the uniqueness constraints existed.
func (m *LegacyMigrator) rebuildMappings(ctx context.Context) error {
	if err := m.tags.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear tag mappings: %w", err)
	}

	pairs, err := m.messages.DistinctIdentityPairs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identity pairs: %w", err)
	}

	for _, pair := range pairs {
		if _, err := m.allocator.Resolve(ctx, pair.Nickname, pair.ClientID); err != nil {
			return fmt.Errorf("failed to rebuild mapping for %s/%s: %w", pair.Nickname, pair.ClientID, err)
		}
	}

	return nil
}

// unbundleLegacyRows detects rows whose content still holds a whole encoded
// form submission, extracts the real identity and message text, and rewrites
// the row. Everything in this pass is best effort: a row that cannot be
// repaired keeps whatever fields it has.
func (m *LegacyMigrator) unbundleLegacyRows(ctx context.Context) {
	rows, err := m.messages.ListAll(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not list messages for legacy unbundling")
		return
	}

	repaired := 0
	for _, row := range rows {
		nickname := row.Nickname
		clientID := row.ClientID
		content := row.Content
		bundled := isBundledSubmission(content)

		if bundled {
			nickname, clientID, content = unbundleSubmission(content)
		}

		tag := row.UserTag
		if bundled || !models.ValidTag(tag) {
			resolved, err := m.allocator.Resolve(ctx, nickname, clientID)
			if err != nil {
				m.logger.Warn().Err(err).
					Uint("message_id", row.ID).
					Msg("could not resolve tag for legacy row, defaulting")
				resolved = models.TagMin
			}
			tag = resolved
		}

		if !bundled && tag == row.UserTag {
			continue
		}

		if err := m.messages.Rewrite(ctx, row.ID, nickname, clientID, tag, content); err != nil {
			m.logger.Warn().Err(err).Uint("message_id", row.ID).Msg("failed to rewrite legacy row")
			continue
		}
		repaired++
	}

	if repaired > 0 {
		m.logger.Info().Int("rows", repaired).Msg("unbundled legacy message rows")
	}
}

// isBundledSubmission applies the heuristic for old submissions whose whole
// form body was stored as the message content. It is intentionally loose; the
// unbundling that follows is best effort.
func isBundledSubmission(content string) bool {
	return strings.Contains(content, "&client_id=") && strings.Contains(content, "&message=")
}

// unbundleSubmission extracts identity fields and the real message text from
// an encoded form body. Fields that cannot be recovered fall back to the
// legacy placeholders, and an unparseable message leaves the content as it
// was stored.
func unbundleSubmission(content string) (nickname, clientID, message string) {
	nickname = LegacyNickname
	clientID = LegacyClientID
	message = content

	// ParseQuery reports an error on malformed escapes but still returns
	// the pairs it could decode.
	values, _ := url.ParseQuery(content)

	if v := values.Get("nickname"); v != "" {
		nickname = v
	}
	if v := values.Get("client_id"); v != "" {
		clientID = v
	}
	if v := values.Get("message"); v != "" {
		message = v
	}

	return nickname, clientID, message
}
