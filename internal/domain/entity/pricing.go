// Package entity 定义领域实体
package entity

import "time"

// PricingUnit 计价单位
type PricingUnit string

const (
	UnitPerRun       PricingUnit = "per_run"
	UnitPerSecond    PricingUnit = "per_second"
	UnitPerMegapixel PricingUnit = "per_megapixel"
)

// PricingEntry 服务计价条目。由管理后台维护，核心每次计价时重新读取，
// 不做跨请求缓存，保证价格修改即时生效。
type PricingEntry struct {
	ID        string      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Service   string      `json:"service" gorm:"type:varchar(64);uniqueIndex;not null"`
	Price     int64       `json:"price" gorm:"not null;default:0"`
	Unit      PricingUnit `json:"unit" gorm:"type:varchar(16);not null;default:'per_run'"`
	IsActive  bool        `json:"is_active" gorm:"not null;default:true"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PricingEntry) TableName() string {
	return "pricing_entries"
}
