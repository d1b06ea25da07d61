package models

import "time"

// SystemSetting is a key/value row backing runtime configuration such as
// fee rates and offer expiration.
type SystemSetting struct {
	Key         string    `gorm:"column:key;type:text;primaryKey"`
	Value       string    `gorm:"column:value;type:text;not null"`
	Description *string   `gorm:"type:text"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (SystemSetting) TableName() string {
	return "system_settings"
}
