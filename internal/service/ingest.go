package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TenhouSync/internal/config"
	"TenhouSync/internal/interfaces"
	"TenhouSync/internal/model"
	"TenhouSync/internal/parser"
	"TenhouSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IngestionService 采集编排：校验→查重→抓取→解析→身份解析→落库。
// 单次调用内严格按上述顺序执行；实体只在一次调用期间借用，不跨调用持有。
// 并发调用各自走独立的gorm会话，重复写入由库级唯一索引兜底。
type IngestionService struct {
	gameLogs   repository.GameLogRepository
	records    repository.GameRecordRepository
	players    repository.PlayerRepository
	statCaches repository.StatisticCacheRepository
	resolver   *PlayerResolver
	fetcher    interfaces.FetchClient
	gate       *ThrottleGate
	parser     *parser.Parser
	logger     *logrus.Logger
	now        func() time.Time // 可注入时钟，节流测试用
}

func NewIngestionService(db *gorm.DB, fetcher interfaces.FetchClient, cfg *config.Config, logger *logrus.Logger) (*IngestionService, error) {
	p, err := parser.NewParser(cfg.Tenhou.RefRegex)
	if err != nil {
		return nil, fmt.Errorf("初始化战绩解析器失败: %w", err)
	}
	playerRepo := repository.NewPlayerRepository(db)
	return &IngestionService{
		gameLogs:   repository.NewGameLogRepository(db),
		records:    repository.NewGameRecordRepository(db),
		players:    playerRepo,
		statCaches: repository.NewStatisticCacheRepository(db),
		resolver:   NewPlayerResolver(playerRepo),
		fetcher:    fetcher,
		gate:       NewThrottleGate(cfg.Ingest.ThrottleCooldown),
		parser:     p,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// tenhouLog 牌谱JSON里核心只读取的几个字段，其余原样存储
type tenhouLog struct {
	Name []string `json:"name"`
	Rule struct {
		Disp string `json:"disp"`
	} `json:"rule"`
	Lobby string `json:"lobby"`
}

// IngestLog 单牌谱采集：按ref抓取一局牌谱并入库。
// 状态机：Validate → CheckExisting → Fetch → Persist；
// 前三步失败时事务尚未开启，第四步整体提交或整体回滚，不会留下半行数据。
func (s *IngestionService) IngestLog(ctx context.Context, rawRef string, uploadUserID *uint64) Outcome {
	log := s.logger.WithField("batch_id", uuid.NewString())

	// Validate：规范化并校验ref
	ref := s.parser.NormalizeRef(rawRef)
	if ref == "" {
		log.Warnf("非法的牌谱ref: %q", rawRef)
		return failureOutcome(KindInvalidReference, fmt.Sprintf("非法的牌谱ref: %s", rawRef))
	}

	// CheckExisting：已有则不再抓取
	exists, err := s.gameLogs.ExistsByRef(ctx, ref)
	if err != nil {
		log.WithError(err).Errorf("查重失败: %s", ref)
		return failureOutcome(KindFetchFailed, "查询牌谱库失败，请稍后重试")
	}
	if exists {
		return successOutcome("该牌谱已上传过", 0)
	}

	// Fetch：抓取牌谱JSON
	payload, err := s.fetcher.FetchLogJSON(ctx, ref)
	if err != nil {
		log.WithError(err).Errorf("抓取牌谱失败: %s", ref)
		return failureOutcome(KindFetchFailed, fmt.Sprintf("抓取牌谱失败: %v", err))
	}

	gameLog, participants, ierr := s.buildGameLog(ref, payload, uploadUserID)
	if ierr != nil {
		log.WithError(ierr).Errorf("牌谱载荷不可用: %s", ref)
		return failureOutcome(ierr.Kind, ierr.Message)
	}

	// Persist：批量解析参战玩家身份，与关联行一并在一个事务里提交
	resolved, err := s.resolver.ResolveBatch(ctx, participants)
	if err != nil {
		log.WithError(err).Errorf("解析参战玩家失败: %s", ref)
		return failureOutcome(KindFetchFailed, "解析参战玩家失败，请稍后重试")
	}
	playerIDs := make([]uint64, 0, len(participants))
	for _, name := range participants {
		playerIDs = append(playerIDs, resolved[name].ID)
	}
	if err := s.gameLogs.CreateWithPlayers(ctx, gameLog, playerIDs); err != nil {
		if repository.IsUniqueViolation(err) {
			// 竞态：查重之后别的调用先提交了同一个ref，视同已存在
			log.Infof("牌谱竞态重复: %s", ref)
			return successOutcome("该牌谱已上传过", 0)
		}
		log.WithError(err).Errorf("牌谱落库失败: %s", ref)
		return failureOutcome(KindFetchFailed, "牌谱保存失败，请稍后重试")
	}

	if err := s.statCaches.InvalidateByPlayers(ctx, participants); err != nil {
		log.WithError(err).Warnf("统计缓存失效失败: %s", ref) // 缓存问题不影响采集结果
	}

	log.Infof("牌谱采集完成: %s，参战%d人", ref, len(participants))
	return successOutcome("牌谱上传成功", 1)
}

// buildGameLog 从牌谱JSON构造GameLog：参战名单、规则、大厅取自载荷，
// 对局时间由ref前10位（YYYYMMDDHH）推导
func (s *IngestionService) buildGameLog(ref, payload string, uploadUserID *uint64) (*model.GameLog, []string, *IngestError) {
	var parsed tenhouLog
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, nil, newIngestError(KindFetchFailed, "牌谱载荷不是有效JSON", err)
	}
	if len(parsed.Name) == 0 {
		return nil, nil, newIngestError(KindFetchFailed, "牌谱载荷缺少参战名单", nil)
	}
	// 对局时间取ref前10位（YYYYMMDDHH）；自定义ref正则可能放进更短的串
	if len(ref) < 10 {
		return nil, nil, newIngestError(KindInvalidReference, "牌谱ref过短，无法推导对局时间", nil)
	}
	playTime, err := time.Parse("2006010215", ref[:10])
	if err != nil {
		return nil, nil, newIngestError(KindInvalidReference, "牌谱ref中的对局时间不可解析", err)
	}
	participants := make([]string, 0, len(parsed.Name))
	for _, name := range parsed.Name {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			participants = append(participants, trimmed)
		}
	}
	return &model.GameLog{
		UploadTime:   s.now(),
		UploadUserID: uploadUserID,
		PlayTime:     playTime,
		Lobby:        parsed.Lobby,
		RuleCode:     parsed.Rule.Disp,
		RefCode:      ref,
		JSON:         datatypes.JSON(payload),
	}, participants, nil
}

// IngestRecords 批量战绩采集：按玩家名抓取战绩流水，逐行去重、解析并一次性落库。
// 状态机：ResolveOwnerPlayer → ThrottleCheck → Fetch → ParseAndDedup →
// ResolveAllPlayers → PersistBatch。
// 节流时间戳在抓取之前单独提交：之后抓取再慢再失败，也不会把闸门重新关上。
func (s *IngestionService) IngestRecords(ctx context.Context, playerName string) Outcome {
	log := s.logger.WithField("batch_id", uuid.NewString())

	// ResolveOwnerPlayer：后续步骤依赖其ID，立即提交
	owner, err := s.resolver.Resolve(ctx, playerName)
	if err != nil {
		log.WithError(err).Errorf("解析玩家失败: %s", playerName)
		return failureOutcome(KindFetchFailed, "解析玩家失败，请稍后重试")
	}

	// ThrottleCheck：判定与时间戳更新在同一工作单元里完成
	now := s.now()
	if !s.gate.Allow(owner.LastCheckTime, now) {
		retryAt := s.gate.RetryAfter(*owner.LastCheckTime)
		log.Infof("玩家%s节流中，上次检查%s", playerName, owner.LastCheckTime.Format(time.DateTime))
		return failureOutcome(KindThrottled,
			fmt.Sprintf("该玩家在%s已检查过，请%s之后再试",
				owner.LastCheckTime.Format(time.DateTime), retryAt.Format(time.DateTime)))
	}
	if err := s.players.UpdateLastCheck(ctx, owner.ID, now); err != nil {
		log.WithError(err).Errorf("更新节流时间失败: %s", playerName)
		return failureOutcome(KindFetchFailed, "更新检查时间失败，请稍后重试")
	}

	// Fetch：抓取战绩流水
	feed, err := s.fetcher.FetchPlayerRecords(ctx, playerName)
	if err != nil {
		log.WithError(err).Errorf("抓取战绩失败: %s", playerName)
		return failureOutcome(KindFetchFailed, fmt.Sprintf("抓取战绩失败: %v", err))
	}

	// ParseAndDedup：hash查重后逐行解析，坏行跳过告警，不拖垮整批
	parsedLines, skipped, err := s.parseFeed(ctx, log, feed)
	if err != nil {
		log.WithError(err).Errorf("战绩查重失败: %s", playerName)
		return failureOutcome(KindFetchFailed, "战绩查重失败，请稍后重试")
	}

	// ResolveAllPlayers：整批所有行的参战玩家并集一次解析
	nameSet := make(map[string]struct{})
	var allNames []string
	for _, rec := range parsedLines {
		for _, res := range rec.Results {
			if _, ok := nameSet[res.Name]; !ok {
				nameSet[res.Name] = struct{}{}
				allNames = append(allNames, res.Name)
			}
		}
	}
	resolved, err := s.resolver.ResolveBatch(ctx, allNames)
	if err != nil {
		log.WithError(err).Errorf("批量解析玩家失败: %s", playerName)
		return failureOutcome(KindFetchFailed, "批量解析玩家失败，请稍后重试")
	}

	// PersistBatch：整批一次事务提交
	batch := make([]*repository.RecordWithPlayers, 0, len(parsedLines))
	for _, rec := range parsedLines {
		batch = append(batch, buildRecordWithPlayers(rec, resolved))
	}
	saved, err := s.records.SaveBatch(ctx, batch)
	if err != nil {
		log.WithError(err).Errorf("战绩落库失败: %s", playerName)
		return failureOutcome(KindFetchFailed, "战绩保存失败，请稍后重试")
	}

	if saved == 0 {
		// 整条流水既无新数据、库里也没有这个玩家的旧数据：名字多半不对
		existing, err := s.records.CountByPlayerID(ctx, owner.ID)
		if err != nil {
			log.WithError(err).Errorf("统计旧战绩失败: %s", playerName)
			return failureOutcome(KindFetchFailed, "统计旧战绩失败，请稍后重试")
		}
		if existing == 0 {
			return failureOutcome(KindPlayerNotFound, fmt.Sprintf("未找到玩家%s的任何战绩", playerName))
		}
	}

	invalidate := append([]string{playerName}, allNames...)
	if err := s.statCaches.InvalidateByPlayers(ctx, invalidate); err != nil {
		log.WithError(err).Warnf("统计缓存失效失败: %s", playerName)
	}

	log.Infof("玩家%s战绩采集完成: 新增%d条，跳过坏行%d条", playerName, saved, skipped)
	return successOutcome(fmt.Sprintf("战绩同步完成，本次新增%d条", saved), saved)
}

// parseFeed 切行→查重→解析。返回新的可入库行和坏行计数。
// 重复行静默排除；坏行记告警后继续，单行坏数据不作废整条流水。
func (s *IngestionService) parseFeed(ctx context.Context, log *logrus.Entry, feed string) ([]*parser.RecordLine, int, error) {
	var lines []string
	var hashes []string
	for _, raw := range strings.Split(feed, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		lines = append(lines, raw)
		hashes = append(hashes, parser.ContentHash(raw))
	}

	existing, err := s.records.ExistingHashes(ctx, hashes)
	if err != nil {
		return nil, 0, err
	}

	var parsedLines []*parser.RecordLine
	skipped := 0
	batchSeen := make(map[string]struct{}) // 同一批里重复出现的行只取一次
	for i, raw := range lines {
		hash := hashes[i]
		if _, ok := existing[hash]; ok {
			continue
		}
		if _, ok := batchSeen[hash]; ok {
			continue
		}
		rec, err := s.parser.ParseRecordLine(raw)
		if err != nil {
			skipped++
			log.WithError(err).Warnf("跳过无法解析的战绩行: %q", strings.TrimSpace(raw))
			continue
		}
		batchSeen[hash] = struct{}{}
		parsedLines = append(parsedLines, rec)
	}
	return parsedLines, skipped, nil
}

func buildRecordWithPlayers(rec *parser.RecordLine, resolved map[string]*model.Player) *repository.RecordWithPlayers {
	record := &model.GameRecord{
		ContentHash: rec.ContentHash,
		Lobby:       rec.Lobby,
		PlayTime:    rec.PlayTime,
		TimeCost:    rec.TimeCost,
		RuleName:    rec.RuleName,
		RefCode:     rec.RefCode,
		RawLine:     rec.RawLine,
	}
	joins := make([]model.GameRecordAndPlayer, 0, len(rec.Results))
	for _, res := range rec.Results {
		joins = append(joins, model.GameRecordAndPlayer{
			PlayerID:   resolved[res.Name].ID,
			Rank:       res.Rank,
			PointDelta: res.PointDelta,
		})
	}
	return &repository.RecordWithPlayers{Record: record, Players: joins}
}
