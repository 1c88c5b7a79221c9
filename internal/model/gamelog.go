package model

import (
	"time"

	"gorm.io/datatypes"
)

// GameLog 一局已入库的牌谱（按ref唯一，创建后不再修改）
type GameLog struct {
	ID           uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	UploadTime   time.Time      `gorm:"column:upload_time;type:timestamp;not null;index"`
	UploadUserID *uint64        `gorm:"column:upload_user_id;type:bigint;index"` // 上传者，可空
	PlayTime     time.Time      `gorm:"column:play_time;type:timestamp;not null;index"`
	Lobby        string         `gorm:"column:lobby;type:varchar(32);not null;index"`
	RuleCode     string         `gorm:"column:rule_code;type:varchar(32);not null;index"`
	RefCode      string         `gorm:"column:ref_code;type:varchar(64);uniqueIndex;not null"` // 规范化后的牌谱ref
	JSON         datatypes.JSON `gorm:"column:json;type:jsonb;not null"`                       // 天凤原始牌谱JSON，不做解构
}

func (GameLog) TableName() string { return "game_logs" }

// GameLogAndPlayer 牌谱与参战玩家的关联（随牌谱一并创建）
type GameLogAndPlayer struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	GameLogID uint64 `gorm:"column:game_log_id;type:bigint;not null;uniqueIndex:uq_log_player"`
	PlayerID  uint64 `gorm:"column:player_id;type:bigint;not null;uniqueIndex:uq_log_player;index"`
	Seat      int    `gorm:"column:seat;type:int;not null"` // 牌谱name数组中的座次（0起）
}

func (GameLogAndPlayer) TableName() string { return "game_log_and_players" }
