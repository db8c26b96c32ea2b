package model

type User struct {
	ID           string `gorm:"column:id;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash"`
	Name         string `gorm:"column:name"`
	Roles        string `gorm:"column:roles"` // comma separated
	Provider     string `gorm:"column:provider"`
	ProviderSub  string `gorm:"column:provider_sub;index"`
	CreatedAt    int64  `gorm:"column:created_at;not null"`
	UpdatedAt    int64  `gorm:"column:updated_at;not null"`
}

func (User) TableName() string {
	return "users"
}
