package repository

import (
	"context"
	"fmt"

	"TenhouSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatisticCacheRepository 统计缓存仓储
type StatisticCacheRepository interface {
	// Get 按查询hash取缓存，未命中返回nil
	Get(ctx context.Context, queryHash string) (*model.StatisticCache, error)
	// Put 写入或覆盖缓存
	Put(ctx context.Context, cache *model.StatisticCache) error
	// InvalidateByPlayers 新数据入库后，按玩家名清掉相关缓存
	InvalidateByPlayers(ctx context.Context, names []string) error
}

type statisticCacheRepository struct {
	db *gorm.DB
}

func NewStatisticCacheRepository(db *gorm.DB) StatisticCacheRepository {
	return &statisticCacheRepository{db: db}
}

func (r *statisticCacheRepository) Get(ctx context.Context, queryHash string) (*model.StatisticCache, error) {
	var cache model.StatisticCache
	err := r.db.WithContext(ctx).Where("query_hash = ?", queryHash).First(&cache).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询统计缓存失败: %w", err)
	}
	return &cache, nil
}

func (r *statisticCacheRepository) Put(ctx context.Context, cache *model.StatisticCache) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"json", "player_name", "updated_at"}),
	}).Create(cache).Error; err != nil {
		return fmt.Errorf("写入统计缓存失败: %w", err)
	}
	return nil
}

func (r *statisticCacheRepository) InvalidateByPlayers(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("player_name IN ?", names).
		Delete(&model.StatisticCache{}).Error; err != nil {
		return fmt.Errorf("失效统计缓存失败: %w", err)
	}
	return nil
}
