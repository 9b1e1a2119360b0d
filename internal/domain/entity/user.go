// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// User 终端用户。Credits 为内部计费单位余额，扣减永远不允许为负。
type User struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Email     string          `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name      string          `json:"name" gorm:"type:varchar(128);not null"`
	Credits   int64           `json:"credits" gorm:"not null;default:0"`
	Settings  json.RawMessage `json:"settings,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// UserSettings 用户生成偏好，注入工具参数默认值与成本规则。
type UserSettings struct {
	ImageWidth    int    `json:"image_width,omitempty"`
	ImageHeight   int    `json:"image_height,omitempty"`
	AspectRatio   string `json:"aspect_ratio,omitempty"`
	VideoDuration int    `json:"video_duration,omitempty"` // 秒
	AudioDuration int    `json:"audio_duration,omitempty"` // 秒
	Voice         string `json:"voice,omitempty"`
}

// DecodeSettings 解析用户偏好，空值返回零值结构
func (u *User) DecodeSettings() UserSettings {
	var s UserSettings
	if u == nil || len(u.Settings) == 0 {
		return s
	}
	_ = json.Unmarshal(u.Settings, &s)
	return s
}
