package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Player 天凤玩家身份（按展示名唯一，首次出现时懒创建，永不删除）
type Player struct {
	ID            uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string     `gorm:"column:name;type:varchar(64);uniqueIndex;not null"` // 展示名，库级唯一约束是防重复的最终保障
	OwnerUserID   *uint64    `gorm:"column:owner_user_id;type:bigint;index"`            // 认领该玩家的用户，可空
	LastCheckTime *time.Time `gorm:"column:last_check_time;type:timestamp"`             // 上次批量抓取战绩的时间（节流用）
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamp;default:CURRENT_TIMESTAMP"`
}

func (Player) TableName() string { return "players" }

// User 上传者账号（鉴权在外层，这里只保留归属关系需要的字段）
type User struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Name         string    `gorm:"column:name;type:varchar(64);uniqueIndex;not null"`
	Pwd          string    `gorm:"column:pwd;type:varchar(128);not null"` // sha256(明文+盐)的hex
	RoleID       int       `gorm:"column:role_id;type:int;not null;default:0"`
	RegisterTime time.Time `gorm:"column:register_time;type:timestamp;not null"`
}

func (User) TableName() string { return "users" }

// PasswordHash 口令散列：sha256(明文+盐)
func PasswordHash(text, salt string) string {
	sum := sha256.Sum256([]byte(text + salt))
	return hex.EncodeToString(sum[:])
}

// SetPassword 更新口令散列
func (u *User) SetPassword(text, salt string) {
	u.Pwd = PasswordHash(text, salt)
}

// IsSamePassword 校验口令
func (u *User) IsSamePassword(text, salt string) bool {
	return PasswordHash(text, salt) == u.Pwd
}
