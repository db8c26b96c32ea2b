package model

type TokenBlacklist struct {
	JTI       string `gorm:"column:jti;primaryKey"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;index"`
	CreatedAt int64  `gorm:"column:created_at;not null"`
}

func (TokenBlacklist) TableName() string {
	return "token_blacklist"
}
