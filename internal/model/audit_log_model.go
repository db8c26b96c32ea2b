package model

type AuditLog struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Action    string `gorm:"column:action;not null;index"`
	UserID    string `gorm:"column:user_id;index"`
	IPAddress string `gorm:"column:ip_address"`
	UserAgent string `gorm:"column:user_agent"`
	Details   string `gorm:"column:details"` // JSON, redacted before storage
	CreatedAt int64  `gorm:"column:created_at;not null;index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
