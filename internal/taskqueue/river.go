package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TenhouSync/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
)

// RiverQueue 基于River（Postgres任务表）的TaskQueue实现。
// River只给"插入任务/查任务行"两个原语，正好对上TaskQueue的submit/poll契约。
type RiverQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// NewRiverQueue 创建队列。fetcher非nil时本进程注册worker（worker侧）；
// 纯提交侧传nil fetcher即可。
func NewRiverQueue(ctx context.Context, dsn string, fetcher interfaces.FetchClient, maxWorkers int, logger *logrus.Logger) (*RiverQueue, error) {
	// River要求pgx连接池，不走database/sql
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析队列DSN失败: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("创建队列连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("队列数据库不可达: %w", err)
	}

	// 任务表不存在则自动建表（幂等，两侧进程谁先起都行）
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("初始化队列迁移器失败: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("队列表结构迁移失败: %w", err)
	}

	riverCfg := &river.Config{}
	if fetcher != nil {
		if maxWorkers <= 0 {
			maxWorkers = 10
		}
		workers := river.NewWorkers()
		river.AddWorker(workers, NewFetchLogWorker(fetcher, logger))
		river.AddWorker(workers, NewFetchRecordsWorker(fetcher, logger))
		river.AddWorker(workers, &PingWorker{})
		riverCfg.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		}
		riverCfg.Workers = workers
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("创建River客户端失败: %w", err)
	}
	return &RiverQueue{client: client, pool: pool, logger: logger}, nil
}

// Start 启动worker消费（仅worker侧需要）
func (q *RiverQueue) Start(ctx context.Context) error {
	if err := q.client.Start(ctx); err != nil {
		return fmt.Errorf("启动River客户端失败: %w", err)
	}
	return nil
}

// Stop 停止消费并释放连接池
func (q *RiverQueue) Stop(ctx context.Context) error {
	if err := q.client.Stop(ctx); err != nil {
		return fmt.Errorf("停止River客户端失败: %w", err)
	}
	q.pool.Close()
	return nil
}

// Submit 非阻塞插入任务行，返回任务ID作为句柄
func (q *RiverQueue) Submit(ctx context.Context, kind string, args map[string]string) (int64, error) {
	var jobArgs river.JobArgs
	switch kind {
	case TaskFetchLog:
		jobArgs = FetchLogArgs{Ref: args["ref"]}
	case TaskFetchRecords:
		jobArgs = FetchRecordsArgs{Name: args["name"]}
	case TaskPing:
		jobArgs = PingArgs{}
	default:
		return 0, fmt.Errorf("未知任务种类: %s", kind)
	}
	result, err := q.client.Insert(ctx, jobArgs, nil)
	if err != nil {
		return 0, fmt.Errorf("插入任务失败: %w", err)
	}
	return result.Job.ID, nil
}

// Poll 非阻塞查询任务行状态。完成态取回RecordOutput写入的输出；
// 丢弃/取消态把worker最后一次上报的错误交还等待方。
func (q *RiverQueue) Poll(ctx context.Context, handle int64) (bool, string, error) {
	job, err := q.client.JobGet(ctx, handle)
	if err != nil {
		if errors.Is(err, rivertype.ErrNotFound) {
			return true, "", fmt.Errorf("任务[%d]不存在", handle)
		}
		return false, "", err // 暂时查不到，让桥继续轮询
	}
	switch job.State {
	case rivertype.JobStateCompleted:
		output, err := jobOutput(job)
		if err != nil {
			return true, "", err
		}
		return true, output, nil
	case rivertype.JobStateDiscarded, rivertype.JobStateCancelled:
		return true, "", fmt.Errorf("任务[%d]失败: %s", handle, lastJobError(job))
	default:
		return false, "", nil
	}
}

// jobOutput 从任务行metadata里取RecordOutput写入的输出
func jobOutput(job *rivertype.JobRow) (string, error) {
	var meta struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(job.Metadata, &meta); err != nil {
		return "", fmt.Errorf("解析任务[%d]输出失败: %w", job.ID, err)
	}
	if len(meta.Output) == 0 {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(meta.Output, &text); err != nil {
		// 输出不是字符串时原样返回JSON
		return string(meta.Output), nil
	}
	return text, nil
}

func lastJobError(job *rivertype.JobRow) string {
	if len(job.Errors) == 0 {
		return "worker未上报原因"
	}
	return job.Errors[len(job.Errors)-1].Error
}

// SelfTest 启动自检：提交一个ping任务并在timeout内等它完成。
// worker侧进程不做自检（worker就是自己）。
func SelfTest(ctx context.Context, bridge *Bridge, timeout time.Duration) error {
	aw, err := bridge.Submit(ctx, TaskPing, nil)
	if err != nil {
		return fmt.Errorf("队列自检提交失败: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := aw.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("队列自检失败（worker可能未启动）: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("队列自检返回异常: %q", result)
	}
	return nil
}
