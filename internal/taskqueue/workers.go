package taskqueue

import (
	"context"

	"TenhouSync/internal/interfaces"

	"github.com/riverqueue/river"
	"github.com/sirupsen/logrus"
)

// 任务种类：抓取在worker进程里执行，请求进程只提交和轮询
const (
	TaskFetchLog     = "tenhou_fetch_log"
	TaskFetchRecords = "tenhou_fetch_records"
	TaskPing         = "queue_ping"
)

// FetchLogArgs 抓取单局牌谱任务的参数
type FetchLogArgs struct {
	Ref string `json:"ref"` // 规范化后的牌谱ref
}

func (FetchLogArgs) Kind() string { return TaskFetchLog }

// FetchRecordsArgs 抓取玩家战绩流水任务的参数
type FetchRecordsArgs struct {
	Name string `json:"name"` // 玩家名
}

func (FetchRecordsArgs) Kind() string { return TaskFetchRecords }

// PingArgs 队列自检任务（启动时验证worker侧存活）
type PingArgs struct{}

func (PingArgs) Kind() string { return TaskPing }

// FetchLogWorker 在worker进程里执行牌谱抓取，输出记录进任务行供轮询方取回
type FetchLogWorker struct {
	river.WorkerDefaults[FetchLogArgs]
	fetcher interfaces.FetchClient
	logger  *logrus.Logger
}

func NewFetchLogWorker(fetcher interfaces.FetchClient, logger *logrus.Logger) *FetchLogWorker {
	return &FetchLogWorker{fetcher: fetcher, logger: logger}
}

func (w *FetchLogWorker) Work(ctx context.Context, job *river.Job[FetchLogArgs]) error {
	body, err := w.fetcher.FetchLogJSON(ctx, job.Args.Ref)
	if err != nil {
		w.logger.WithError(err).Errorf("worker抓取牌谱失败: %s", job.Args.Ref)
		return err
	}
	return river.RecordOutput(ctx, body)
}

// FetchRecordsWorker 在worker进程里执行战绩流水抓取
type FetchRecordsWorker struct {
	river.WorkerDefaults[FetchRecordsArgs]
	fetcher interfaces.FetchClient
	logger  *logrus.Logger
}

func NewFetchRecordsWorker(fetcher interfaces.FetchClient, logger *logrus.Logger) *FetchRecordsWorker {
	return &FetchRecordsWorker{fetcher: fetcher, logger: logger}
}

func (w *FetchRecordsWorker) Work(ctx context.Context, job *river.Job[FetchRecordsArgs]) error {
	feed, err := w.fetcher.FetchPlayerRecords(ctx, job.Args.Name)
	if err != nil {
		w.logger.WithError(err).Errorf("worker抓取战绩失败: %s", job.Args.Name)
		return err
	}
	return river.RecordOutput(ctx, feed)
}

// PingWorker 自检任务直接返回ok
type PingWorker struct {
	river.WorkerDefaults[PingArgs]
}

func (w *PingWorker) Work(ctx context.Context, job *river.Job[PingArgs]) error {
	return river.RecordOutput(ctx, "ok")
}
