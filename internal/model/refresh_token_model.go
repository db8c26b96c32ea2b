package model

// TokenHash stores a SHA-256 of the opaque secret, never the secret itself.
// FamilyID links every token produced by successive rotations from one
// original issuance so the whole lineage can be revoked on reuse detection.
type RefreshToken struct {
	ID              string `gorm:"column:id;primaryKey"`
	UserID          string `gorm:"column:user_id;not null;index"`
	TokenHash       string `gorm:"column:token_hash;uniqueIndex;not null"`
	FamilyID        string `gorm:"column:family_id;not null;index"`
	Revoked         bool   `gorm:"column:revoked;default:false"`
	RevokedByIP     string `gorm:"column:revoked_by_ip"`
	ReplacedByToken string `gorm:"column:replaced_by_token"`
	CreatedByIP     string `gorm:"column:created_by_ip"`
	UserAgent       string `gorm:"column:user_agent"`
	ExpiresAt       int64  `gorm:"column:expires_at;not null;index"`
	CreatedAt       int64  `gorm:"column:created_at;not null"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
