package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"TenhouSync/internal/config"
	"TenhouSync/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

const (
	testRef     = "2024010521gm-00a9-0000-6e9cd628"
	testLogJSON = `{"name":["Alice","Bob","Carol","Dave"],"rule":{"disp":"四鳳南喰赤"},"lobby":"0"}`
)

// fakeFetcher 测试用FetchClient：返回预置内容并记录调用次数
type fakeFetcher struct {
	logJSON   string
	logErr    error
	feed      string
	feedErr   error
	logCalls  int
	feedCalls int
}

func (f *fakeFetcher) FetchLogJSON(ctx context.Context, ref string) (string, error) {
	f.logCalls++
	return f.logJSON, f.logErr
}

func (f *fakeFetcher) FetchPlayerRecords(ctx context.Context, name string) (string, error) {
	f.feedCalls++
	return f.feed, f.feedErr
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(t *testing.T, fetcher *fakeFetcher) (*IngestionService, *gorm.DB) {
	t.Helper()
	return newTestServiceWithRegex(t, fetcher, config.DefaultRefRegex)
}

func newTestServiceWithRegex(t *testing.T, fetcher *fakeFetcher, refRegex string) (*IngestionService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Player{},
		&model.GameLog{},
		&model.GameLogAndPlayer{},
		&model.GameRecord{},
		&model.GameRecordAndPlayer{},
		&model.StatisticCache{},
	))

	cfg := &config.Config{
		Tenhou: config.TenhouConfig{RefRegex: refRegex},
		Ingest: config.IngestConfig{ThrottleCooldown: 24 * time.Hour},
	}
	svc, err := NewIngestionService(db, fetcher, cfg, testLogger())
	require.NoError(t, err)
	return svc, db
}

func TestIngestLogInvalidReference(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc, _ := newTestService(t, fetcher)

	outcome := svc.IngestLog(context.Background(), "not-a-ref", nil)
	require.False(t, outcome.OK)
	require.Equal(t, KindInvalidReference, outcome.Kind)
	require.Zero(t, fetcher.logCalls, "invalid refs must never reach the fetcher")
}

func TestIngestLogIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{logJSON: testLogJSON}
	svc, db := newTestService(t, fetcher)

	first := svc.IngestLog(context.Background(), testRef, nil)
	require.True(t, first.OK, first.Message)
	require.Equal(t, 1, first.Count)

	second := svc.IngestLog(context.Background(), testRef, nil)
	require.True(t, second.OK)
	require.Equal(t, 0, second.Count)
	require.Equal(t, 1, fetcher.logCalls, "the second call must return before fetching")

	var logs int64
	require.NoError(t, db.Model(&model.GameLog{}).Count(&logs).Error)
	require.EqualValues(t, 1, logs, "ingesting the same ref twice must keep exactly one row")
}

func TestIngestLogPersistsParticipants(t *testing.T) {
	fetcher := &fakeFetcher{logJSON: testLogJSON}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestLog(context.Background(), "http://tenhou.net/0/?log="+testRef+"&tw=2", nil)
	require.True(t, outcome.OK, outcome.Message)

	var gameLog model.GameLog
	require.NoError(t, db.Where("ref_code = ?", testRef).First(&gameLog).Error)
	require.Equal(t, "四鳳南喰赤", gameLog.RuleCode)
	require.Equal(t, "2024-01-05 21:00", gameLog.PlayTime.Format("2006-01-02 15:04"))

	var players int64
	require.NoError(t, db.Model(&model.Player{}).Count(&players).Error)
	require.EqualValues(t, 4, players)

	var joins []model.GameLogAndPlayer
	require.NoError(t, db.Where("game_log_id = ?", gameLog.ID).Order("seat").Find(&joins).Error)
	require.Len(t, joins, 4)
	for seat, join := range joins {
		require.Equal(t, seat, join.Seat)
	}
}

func TestIngestLogFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{logErr: errors.New("connection refused")}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestLog(context.Background(), testRef, nil)
	require.False(t, outcome.OK)
	require.Equal(t, KindFetchFailed, outcome.Kind)

	var logs int64
	require.NoError(t, db.Model(&model.GameLog{}).Count(&logs).Error)
	require.Zero(t, logs, "a failed fetch must leave no partial rows")
}

func TestIngestLogUnparsablePayload(t *testing.T) {
	fetcher := &fakeFetcher{logJSON: "<html>not json</html>"}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestLog(context.Background(), testRef, nil)
	require.False(t, outcome.OK)
	require.Equal(t, KindFetchFailed, outcome.Kind)

	var logs int64
	require.NoError(t, db.Model(&model.GameLog{}).Count(&logs).Error)
	require.Zero(t, logs)
}

func TestIngestLogShortRefRejected(t *testing.T) {
	// 宽松的自定义ref正则可能匹配出不足10位的串，推导不出对局时间
	fetcher := &fakeFetcher{logJSON: testLogJSON}
	svc, db := newTestServiceWithRegex(t, fetcher, `([a-z]+)`)

	outcome := svc.IngestLog(context.Background(), "abc", nil)
	require.False(t, outcome.OK)
	require.Equal(t, KindInvalidReference, outcome.Kind)

	var logs int64
	require.NoError(t, db.Model(&model.GameLog{}).Count(&logs).Error)
	require.Zero(t, logs)
}

func recordsFeed(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestIngestRecordsBatchDedup(t *testing.T) {
	line1 := "L0|22|2024-01-05 21:00|四般南喰赤|---|Alice+30Bob-10Carol-20"
	line2 := "L0|25|2024-01-06 20:00|四般南喰赤|---|Alice+45Bob-15Carol-30"

	fetcher := &fakeFetcher{feed: recordsFeed(line1)}
	svc, db := newTestService(t, fetcher)

	base := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	first := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, first.OK, first.Message)
	require.Equal(t, 1, first.Count)

	// 第二次：一行重复、一行新，只新增一条
	fetcher.feed = recordsFeed(line1, line2)
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }

	second := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, second.OK, second.Message)
	require.Equal(t, 1, second.Count)

	var records int64
	require.NoError(t, db.Model(&model.GameRecord{}).Count(&records).Error)
	require.EqualValues(t, 2, records)
}

func TestIngestRecordsThrottled(t *testing.T) {
	line := "L0|22|2024-01-05 21:00|四般南喰赤|---|Alice+30Bob-10Carol-20"
	fetcher := &fakeFetcher{feed: recordsFeed(line)}
	svc, _ := newTestService(t, fetcher)

	base := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	first := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, first.OK, first.Message)

	// 冷却窗口内的第二次调用被节流，且不触发抓取
	second := svc.IngestRecords(context.Background(), "Alice")
	require.False(t, second.OK)
	require.Equal(t, KindThrottled, second.Kind)
	require.Contains(t, second.Message, base.Format(time.DateTime))
	require.Equal(t, 1, fetcher.feedCalls)

	// 冷却结束后放行
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	third := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, third.OK, third.Message)
	require.Equal(t, 2, fetcher.feedCalls)
}

func TestIngestRecordsSharesNewIdentity(t *testing.T) {
	// 同一个新玩家出现在三行里，只建一个Player，三条关联都指向它
	lines := recordsFeed(
		"L0|20|2024-01-05 20:00|四般南喰赤|---|Newbie+30Bob-10Carol-20",
		"L0|21|2024-01-05 21:00|四般南喰赤|---|Newbie-5Bob+15Carol-10",
		"L0|22|2024-01-05 22:00|四般南喰赤|---|Newbie+50Bob-20Carol-30",
	)
	fetcher := &fakeFetcher{feed: lines}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestRecords(context.Background(), "Newbie")
	require.True(t, outcome.OK, outcome.Message)
	require.Equal(t, 3, outcome.Count)

	var players []model.Player
	require.NoError(t, db.Where("name = ?", "Newbie").Find(&players).Error)
	require.Len(t, players, 1, "three sightings of a new name must create exactly one player")

	var joins int64
	require.NoError(t, db.Model(&model.GameRecordAndPlayer{}).
		Where("player_id = ?", players[0].ID).Count(&joins).Error)
	require.EqualValues(t, 3, joins)
}

func TestIngestRecordsSkipsMalformedLine(t *testing.T) {
	// 第二行名与得点无法对齐，跳过它但不作废整批
	lines := recordsFeed(
		"L0|20|2024-01-05 20:00|四般南喰赤|---|Alice+30Bob-10Carol-20",
		"L0|21|2024-01-05 21:00|四般南喰赤|---|+15Carol-10",
		"L0|22|2024-01-05 22:00|四般南喰赤|---|Alice+50Bob-20Carol-30",
	)
	fetcher := &fakeFetcher{feed: lines}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, outcome.OK, outcome.Message)
	require.Equal(t, 2, outcome.Count)

	var records int64
	require.NoError(t, db.Model(&model.GameRecord{}).Count(&records).Error)
	require.EqualValues(t, 2, records)
}

func TestIngestRecordsSkipsDuplicateNameLine(t *testing.T) {
	// 第二行同一玩家名出现两次，落库会撞玩家关联唯一索引：
	// 该行在解析阶段被拒，其余两行照常入库
	lines := recordsFeed(
		"L0|20|2024-01-05 20:00|四般南喰赤|---|Alice+30Bob-10Carol-20",
		"L0|21|2024-01-05 21:00|四般南喰赤|---|Alice+30Alice-30",
		"L0|22|2024-01-05 22:00|四般南喰赤|---|Alice+50Bob-20Carol-30",
	)
	fetcher := &fakeFetcher{feed: lines}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, outcome.OK, outcome.Message)
	require.Equal(t, 2, outcome.Count)

	var records int64
	require.NoError(t, db.Model(&model.GameRecord{}).Count(&records).Error)
	require.EqualValues(t, 2, records)
}

func TestIngestRecordsPlayerNotFound(t *testing.T) {
	fetcher := &fakeFetcher{feed: "\n  \n"}
	svc, _ := newTestService(t, fetcher)

	outcome := svc.IngestRecords(context.Background(), "Nobody")
	require.False(t, outcome.OK)
	require.Equal(t, KindPlayerNotFound, outcome.Kind)
}

func TestIngestRecordsDuplicateOnlyFeedIsBenign(t *testing.T) {
	line := "L0|22|2024-01-05 21:00|四般南喰赤|---|Alice+30Bob-10Carol-20"
	fetcher := &fakeFetcher{feed: recordsFeed(line)}
	svc, _ := newTestService(t, fetcher)

	base := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	first := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, first.OK, first.Message)

	// 整条流水全是旧数据：不算失败，也不算PlayerNotFound
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	second := svc.IngestRecords(context.Background(), "Alice")
	require.True(t, second.OK, second.Message)
	require.Equal(t, 0, second.Count)
}

func TestIngestRecordsFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{feedErr: errors.New("upstream timeout")}
	svc, db := newTestService(t, fetcher)

	outcome := svc.IngestRecords(context.Background(), "Alice")
	require.False(t, outcome.OK)
	require.Equal(t, KindFetchFailed, outcome.Kind)

	// 节流时间戳在抓取前已提交：失败不回滚闸门
	var player model.Player
	require.NoError(t, db.Where("name = ?", "Alice").First(&player).Error)
	require.NotNil(t, player.LastCheckTime)

	var records int64
	require.NoError(t, db.Model(&model.GameRecord{}).Count(&records).Error)
	require.Zero(t, records)
}
