package model

import "time"

// StatisticCache 统计结果缓存（按查询hash定位，入库新数据时按玩家失效）
type StatisticCache struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	QueryHash  string    `gorm:"column:query_hash;type:varchar(64);uniqueIndex;not null"`
	PlayerName string    `gorm:"column:player_name;type:varchar(64);index"` // 缓存涉及的玩家，失效时按此匹配
	JSON       string    `gorm:"column:json;type:text;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (StatisticCache) TableName() string { return "statistic_caches" }
