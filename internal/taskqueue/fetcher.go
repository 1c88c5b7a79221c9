package taskqueue

import (
	"context"

	"TenhouSync/internal/interfaces"
)

// QueuedFetcher 把FetchClient的两个调用形态转发到任务队列：
// 请求进程提交任务后在自己的goroutine里等结果，真正的网络抓取由worker进程完成。
// IngestionService对此无感知，单测和worker进程直接换成tenhou.Client即可。
type QueuedFetcher struct {
	bridge *Bridge
}

func NewQueuedFetcher(bridge *Bridge) interfaces.FetchClient {
	return &QueuedFetcher{bridge: bridge}
}

func (f *QueuedFetcher) FetchLogJSON(ctx context.Context, ref string) (string, error) {
	aw, err := f.bridge.Submit(ctx, TaskFetchLog, map[string]string{"ref": ref})
	if err != nil {
		return "", err
	}
	return aw.Wait(ctx)
}

func (f *QueuedFetcher) FetchPlayerRecords(ctx context.Context, name string) (string, error) {
	aw, err := f.bridge.Submit(ctx, TaskFetchRecords, map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	return aw.Wait(ctx)
}
