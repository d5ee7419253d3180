package models

// TagMin and TagMax bound the discriminator shown next to a nickname.
// Anything outside the range is treated as unresolved.
const (
	TagMin = 1
	TagMax = 9999
)

// UnresolvedTag marks a message whose discriminator has not been assigned yet.
// Only legacy rows written before the tag column existed carry it.
const UnresolvedTag = -1

// Message represents a single posted board entry.
type Message struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Content   string `gorm:"type:text" json:"content"`
	Timestamp string `gorm:"size:64" json:"timestamp"`
	Nickname  string `gorm:"size:64;default:anon;index" json:"nickname"`
	ClientID  string `gorm:"size:128;default:legacy" json:"client_id"`
	UserTag   int    `gorm:"default:-1" json:"user_tag"`
	CreatedAt int64  `gorm:"autoCreateTime;index" json:"created_at"`
}

// HasValidTag reports whether the message carries a resolved discriminator.
func (m Message) HasValidTag() bool {
	return ValidTag(m.UserTag)
}

// NicknameTag associates one (nickname, client) identity with its discriminator.
// Both composite uniqueness constraints are load-bearing: the allocator relies
// on insert rejection to serialize concurrent claims of the same slot.
type NicknameTag struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Nickname string `gorm:"size:64;not null;uniqueIndex:idx_nickname_client;uniqueIndex:idx_nickname_tag" json:"nickname"`
	ClientID string `gorm:"size:128;not null;uniqueIndex:idx_nickname_client" json:"client_id"`
	Tag      int    `gorm:"not null;uniqueIndex:idx_nickname_tag" json:"tag"`
}

// ValidTag reports whether tag falls inside the displayable range.
func ValidTag(tag int) bool {
	return tag >= TagMin && tag <= TagMax
}
