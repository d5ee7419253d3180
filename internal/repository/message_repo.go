package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/liveboard-app/liveboard-api/internal/models"
)

// IdentityPair is one distinct (nickname, client) identity found in the
// message table. Used only during startup migration.
type IdentityPair struct {
	Nickname string
	ClientID string
}

// MessageRepository handles persistence for posted messages.
type MessageRepository interface {
	Insert(ctx context.Context, message *models.Message) error
	ListRecent(ctx context.Context, limit int) ([]models.Message, error)
	ListAll(ctx context.Context) ([]models.Message, error)
	DistinctIdentityPairs(ctx context.Context) ([]IdentityPair, error)
	BackfillTag(ctx context.Context, nickname, clientID string, tag int) error
	RepairTagsFromMappings(ctx context.Context, fallback int) error
	Rewrite(ctx context.Context, id uint, nickname, clientID string, tag int, content string) error
	NormalizeIdentityDefaults(ctx context.Context) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Insert(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListRecent returns the newest limit messages ordered oldest first, so
// callers can render them top to bottom without re-sorting.
func (r *messageRepository) ListRecent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var messages []models.Message
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) ListAll(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	if err := r.db.WithContext(ctx).Order("id").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// DistinctIdentityPairs lists every identity that has posted, in stable
// lexicographic order. Rows with empty identity fields are excluded; the
// migrator normalizes those first.
func (r *messageRepository) DistinctIdentityPairs(ctx context.Context) ([]IdentityPair, error) {
	var pairs []IdentityPair
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Distinct("nickname", "client_id").
		Where("nickname IS NOT NULL AND nickname <> '' AND client_id IS NOT NULL AND client_id <> ''").
		Order("nickname, client_id").
		Scan(&pairs).Error
	if err != nil {
		return nil, err
	}

	return pairs, nil
}

func (r *messageRepository) BackfillTag(ctx context.Context, nickname, clientID string, tag int) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("nickname = ? AND client_id = ? AND (user_tag IS NULL OR user_tag < ? OR user_tag > ?)",
			nickname, clientID, models.TagMin, models.TagMax).
		Update("user_tag", tag).Error
}

// RepairTagsFromMappings rewrites every row's tag from the rebuilt mapping
// table in one statement, falling back to the given tag when no mapping
// exists for the row's identity.
func (r *messageRepository) RepairTagsFromMappings(ctx context.Context, fallback int) error {
	return r.db.WithContext(ctx).Exec(
		"UPDATE messages SET user_tag = COALESCE(("+
			"SELECT t.tag FROM nickname_tags t "+
			"WHERE t.nickname = messages.nickname AND t.client_id = messages.client_id"+
			"), ?)", fallback).Error
}

func (r *messageRepository) Rewrite(ctx context.Context, id uint, nickname, clientID string, tag int, content string) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"nickname":  nickname,
			"client_id": clientID,
			"user_tag":  tag,
			"content":   content,
		}).Error
}

// NormalizeIdentityDefaults fills identity columns that predate the column
// separation with their placeholder values.
func (r *messageRepository) NormalizeIdentityDefaults(ctx context.Context) error {
	db := r.db.WithContext(ctx)

	if err := db.Exec("UPDATE messages SET nickname = 'anon' WHERE nickname IS NULL OR nickname = ''").Error; err != nil {
		return err
	}
	if err := db.Exec("UPDATE messages SET client_id = 'legacy' WHERE client_id IS NULL OR client_id = ''").Error; err != nil {
		return err
	}

	return db.Exec("UPDATE messages SET created_at = ? WHERE created_at IS NULL OR created_at = 0",
		time.Now().Unix()).Error
}
