package repository

import (
	"context"
	"fmt"

	"TenhouSync/internal/model"

	"gorm.io/gorm"
)

// GameLogRepository 牌谱仓储
type GameLogRepository interface {
	// ExistsByRef 该ref是否已有入库牌谱
	ExistsByRef(ctx context.Context, ref string) (bool, error)
	// CreateWithPlayers 牌谱与参战关联在一个事务里落库；
	// playerIDs按牌谱座次给出，整体提交或整体回滚
	CreateWithPlayers(ctx context.Context, gameLog *model.GameLog, playerIDs []uint64) error
}

type gameLogRepository struct {
	db *gorm.DB
}

func NewGameLogRepository(db *gorm.DB) GameLogRepository {
	return &gameLogRepository{db: db}
}

func (r *gameLogRepository) ExistsByRef(ctx context.Context, ref string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.GameLog{}).
		Where("ref_code = ?", ref).Count(&count).Error; err != nil {
		return false, fmt.Errorf("查询牌谱失败: %w", err)
	}
	return count > 0, nil
}

func (r *gameLogRepository) CreateWithPlayers(ctx context.Context, gameLog *model.GameLog, playerIDs []uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(gameLog).Error; err != nil {
			return fmt.Errorf("保存牌谱失败: %w", err)
		}
		for seat, playerID := range playerIDs {
			link := &model.GameLogAndPlayer{
				GameLogID: gameLog.ID,
				PlayerID:  playerID,
				Seat:      seat,
			}
			if err := tx.Create(link).Error; err != nil {
				return fmt.Errorf("保存牌谱玩家关联失败: %w", err)
			}
		}
		return nil
	})
}
