package repository

import (
	"context"
	"fmt"
	"time"

	"TenhouSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlayerRepository 玩家身份仓储
type PlayerRepository interface {
	// GetOrCreate 按名字取玩家，不存在则创建并立即提交
	GetOrCreate(ctx context.Context, name string) (*model.Player, error)
	// FindByNames 批量按名字查已有玩家
	FindByNames(ctx context.Context, names []string) ([]*model.Player, error)
	// CreateBatch 批量创建玩家，名字冲突时忽略（库级唯一索引兜底并发）
	CreateBatch(ctx context.Context, players []*model.Player) error
	// UpdateLastCheck 更新节流时间戳并立即提交
	UpdateLastCheck(ctx context.Context, playerID uint64, checkTime time.Time) error
}

type playerRepository struct {
	db *gorm.DB
}

func NewPlayerRepository(db *gorm.DB) PlayerRepository {
	return &playerRepository{db: db}
}

func (r *playerRepository) GetOrCreate(ctx context.Context, name string) (*model.Player, error) {
	player := &model.Player{Name: name}
	// 冲突即已存在，DoNothing后重查拿到现成的行
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(player).Error; err != nil {
		return nil, fmt.Errorf("创建玩家失败: %w", err)
	}
	if player.ID == 0 {
		if err := r.db.WithContext(ctx).Where("name = ?", name).First(player).Error; err != nil {
			return nil, fmt.Errorf("查询玩家失败: %w", err)
		}
	}
	return player, nil
}

func (r *playerRepository) FindByNames(ctx context.Context, names []string) ([]*model.Player, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var players []*model.Player
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&players).Error; err != nil {
		return nil, fmt.Errorf("批量查询玩家失败: %w", err)
	}
	return players, nil
}

func (r *playerRepository) CreateBatch(ctx context.Context, players []*model.Player) error {
	if len(players) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&players).Error; err != nil {
		return fmt.Errorf("批量创建玩家失败: %w", err)
	}
	return nil
}

func (r *playerRepository) UpdateLastCheck(ctx context.Context, playerID uint64, checkTime time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.Player{}).
		Where("id = ?", playerID).
		Update("last_check_time", checkTime).Error; err != nil {
		return fmt.Errorf("更新玩家节流时间失败: %w", err)
	}
	return nil
}
