package interfaces

import "context"

// FetchClient 天凤数据抓取客户端（外部协作者，核心只依赖这两个调用形态）
type FetchClient interface {
	// FetchLogJSON 按规范化ref抓取一局牌谱的JSON文本
	FetchLogJSON(ctx context.Context, ref string) (string, error)
	// FetchPlayerRecords 按玩家名抓取其全部战绩流水文本
	FetchPlayerRecords(ctx context.Context, name string) (string, error)
}

// TaskQueue 进程外任务队列，只暴露"提交任务"和"查询是否完成"两个能力
type TaskQueue interface {
	// Submit 非阻塞提交任务，返回任务句柄
	Submit(ctx context.Context, kind string, args map[string]string) (int64, error)
	// Poll 非阻塞查询：done=false表示仍在执行；done=true时result为任务输出，
	// err为worker侧上报的失败
	Poll(ctx context.Context, handle int64) (done bool, result string, err error)
}
