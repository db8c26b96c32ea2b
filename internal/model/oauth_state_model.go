package model

type OAuthState struct {
	State        string `gorm:"column:state;primaryKey"`
	UserID       string `gorm:"column:user_id"`
	Provider     string `gorm:"column:provider;not null"`
	RedirectURL  string `gorm:"column:redirect_url"`
	LinkMode     bool   `gorm:"column:link_mode;default:false"`
	CodeVerifier string `gorm:"column:code_verifier;not null"`
	Nonce        string `gorm:"column:nonce;not null"`
	IPAddress    string `gorm:"column:ip_address"`
	UserAgent    string `gorm:"column:user_agent"`
	ExpiresAt    int64  `gorm:"column:expires_at;not null;index"`
	CreatedAt    int64  `gorm:"column:created_at;not null"`
}

func (OAuthState) TableName() string {
	return "oauth_states"
}
