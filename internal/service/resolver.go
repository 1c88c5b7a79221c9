package service

import (
	"context"
	"fmt"

	"TenhouSync/internal/model"
	"TenhouSync/internal/repository"
)

// PlayerResolver 玩家身份解析：名字→Player行，首见即建。
// 两种策略：Resolve逐个get-or-create并立即提交；ResolveBatch一次往返解析整组名字，
// 批内重复的新名字共享同一个身份。返回的映射只在本次调用内有效，不做进程级缓存，
// 防止并发批次之间互相看到陈旧的身份。
type PlayerResolver struct {
	players repository.PlayerRepository
}

func NewPlayerResolver(players repository.PlayerRepository) *PlayerResolver {
	return &PlayerResolver{players: players}
}

// Resolve 立即模式：取或建单个玩家，创建即提交
func (r *PlayerResolver) Resolve(ctx context.Context, name string) (*model.Player, error) {
	return r.players.GetOrCreate(ctx, name)
}

// ResolveBatch 批量模式：一次查询已有身份，缺的一次批量创建并提交，
// 再统一回查建立映射。名字级的库唯一索引才是防重复的最终保障，
// 这里只是省掉N次串行往返的优化。
func (r *PlayerResolver) ResolveBatch(ctx context.Context, names []string) (map[string]*model.Player, error) {
	resolved := make(map[string]*model.Player, len(names))
	if len(names) == 0 {
		return resolved, nil
	}

	// 批内去重，保持首次出现的顺序
	unique := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}

	existing, err := r.players.FindByNames(ctx, unique)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		resolved[p.Name] = p
	}

	var missing []*model.Player
	for _, name := range unique {
		if _, ok := resolved[name]; !ok {
			missing = append(missing, &model.Player{Name: name})
		}
	}
	if len(missing) > 0 {
		if err := r.players.CreateBatch(ctx, missing); err != nil {
			return nil, err
		}
		// 回查而不是直接用插入结果：冲突被忽略的行要拿到别人先插的ID
		created, err := r.players.FindByNames(ctx, unique)
		if err != nil {
			return nil, err
		}
		for _, p := range created {
			resolved[p.Name] = p
		}
	}

	for _, name := range unique {
		if _, ok := resolved[name]; !ok {
			return nil, fmt.Errorf("玩家%q批量解析后仍无身份", name)
		}
	}
	return resolved, nil
}
