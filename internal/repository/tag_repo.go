package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/liveboard-app/liveboard-api/internal/models"
)

// TagRepository handles persistence for nickname tag mappings.
//
// Insert treats a uniqueness violation as an ordinary outcome rather than an
// error: the allocator probes the tag space by attempting inserts and loops
// on rejection.
type TagRepository interface {
	Lookup(ctx context.Context, nickname, clientID string) (int, bool, error)
	Insert(ctx context.Context, mapping models.NicknameTag) (bool, error)
	Delete(ctx context.Context, nickname, clientID string) error
	DeleteAll(ctx context.Context) error
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository constructs a repository backed by GORM.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Lookup(ctx context.Context, nickname, clientID string) (int, bool, error) {
	var mapping models.NicknameTag
	err := r.db.WithContext(ctx).
		Where("nickname = ? AND client_id = ?", nickname, clientID).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return mapping.Tag, true, nil
}

func (r *tagRepository) Insert(ctx context.Context, mapping models.NicknameTag) (bool, error) {
	err := r.db.WithContext(ctx).Create(&mapping).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *tagRepository) Delete(ctx context.Context, nickname, clientID string) error {
	return r.db.WithContext(ctx).
		Where("nickname = ? AND client_id = ?", nickname, clientID).
		Delete(&models.NicknameTag{}).Error
}

func (r *tagRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("DELETE FROM nickname_tags").Error
}
