package model

type AuthorizationCode struct {
	Code                string `gorm:"column:code;primaryKey"`
	UserID              string `gorm:"column:user_id;not null"`
	ClientID            string `gorm:"column:client_id;not null"`
	RedirectURI         string `gorm:"column:redirect_uri;not null"`
	CodeChallenge       string `gorm:"column:code_challenge;not null"`
	CodeChallengeMethod string `gorm:"column:code_challenge_method;not null"`
	Scope               string `gorm:"column:scope"`
	Used                bool   `gorm:"column:used;default:false"`
	CreatedByIP         string `gorm:"column:created_by_ip"`
	UsedByIP            string `gorm:"column:used_by_ip"`
	ExpiresAt           int64  `gorm:"column:expires_at;not null;index"`
	CreatedAt           int64  `gorm:"column:created_at;not null"`
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
