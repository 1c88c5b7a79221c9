package model

import "time"

// GameRecord 战绩流水中的一行（按内容hash唯一去重，创建后不再修改）
type GameRecord struct {
	ID          uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	ContentHash string     `gorm:"column:content_hash;type:varchar(64);uniqueIndex;not null"` // sha256(trim后的原始行)
	Lobby       string     `gorm:"column:lobby;type:varchar(32);not null;index"`
	PlayTime    time.Time  `gorm:"column:play_time;type:timestamp;not null;index"`
	TimeCost    *int       `gorm:"column:time_cost;type:int"` // 对局耗时（分钟），流水里可能缺失
	RuleName    string     `gorm:"column:rule_name;type:varchar(64);not null"`
	RefCode     *string    `gorm:"column:ref_code;type:varchar(64);index"` // 流水行里的牌谱ref，占位符时为空
	RawLine     string     `gorm:"column:raw_line;type:text;not null"`     // 原始行原样保留
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (GameRecord) TableName() string { return "game_records" }

// GameRecordAndPlayer 战绩行与玩家的关联，带名次和得点（随战绩行一并创建）
type GameRecordAndPlayer struct {
	ID           uint64  `gorm:"column:id;primaryKey;autoIncrement"`
	GameRecordID uint64  `gorm:"column:game_record_id;type:bigint;not null;uniqueIndex:uq_record_player"`
	PlayerID     uint64  `gorm:"column:player_id;type:bigint;not null;uniqueIndex:uq_record_player;index"`
	Rank         int     `gorm:"column:rank;type:int;not null"`                // 按得点降序的1起名次，同分保持原序
	PointDelta   float64 `gorm:"column:point_delta;type:numeric(8,1);not null"` // 该局得点变动
}

func (GameRecordAndPlayer) TableName() string { return "game_record_and_players" }
