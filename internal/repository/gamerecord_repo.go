package repository

import (
	"context"
	"fmt"

	"TenhouSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordWithPlayers 待入库的战绩行及其玩家关联（关联行的GameRecordID在入库时回填）
type RecordWithPlayers struct {
	Record  *model.GameRecord
	Players []model.GameRecordAndPlayer
}

// GameRecordRepository 战绩行仓储
type GameRecordRepository interface {
	// ExistingHashes 给定一组内容hash，返回库中已存在的子集
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	// CountByPlayerID 某玩家已关联的战绩行数（判定PlayerNotFound用）
	CountByPlayerID(ctx context.Context, playerID uint64) (int64, error)
	// SaveBatch 本次调用新增的战绩行与关联在一个事务里落库，整体提交一次；
	// 单行hash冲突（并发竞态）跳过该行而不中断整批
	SaveBatch(ctx context.Context, batch []*RecordWithPlayers) (int, error)
}

type gameRecordRepository struct {
	db *gorm.DB
}

func NewGameRecordRepository(db *gorm.DB) GameRecordRepository {
	return &gameRecordRepository{db: db}
}

func (r *gameRecordRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&model.GameRecord{}).
		Where("content_hash IN ?", hashes).
		Pluck("content_hash", &found).Error; err != nil {
		return nil, fmt.Errorf("查询已有战绩hash失败: %w", err)
	}
	for _, h := range found {
		existing[h] = struct{}{}
	}
	return existing, nil
}

func (r *gameRecordRepository) CountByPlayerID(ctx context.Context, playerID uint64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.GameRecordAndPlayer{}).
		Where("player_id = ?", playerID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计玩家战绩数失败: %w", err)
	}
	return count, nil
}

func (r *gameRecordRepository) SaveBatch(ctx context.Context, batch []*RecordWithPlayers) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	saved := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range batch {
			// DoNothing：查重之后到提交之前别的调用也可能插了同一行
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "content_hash"}},
				DoNothing: true,
			}).Create(item.Record)
			if result.Error != nil {
				return fmt.Errorf("保存战绩行失败: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				continue // 竞态重复，按已存在处理
			}
			for i := range item.Players {
				item.Players[i].GameRecordID = item.Record.ID
				if err := tx.Create(&item.Players[i]).Error; err != nil {
					return fmt.Errorf("保存战绩玩家关联失败: %w", err)
				}
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}
