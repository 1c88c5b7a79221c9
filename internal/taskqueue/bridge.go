package taskqueue

import (
	"context"
	"fmt"
	"time"

	"TenhouSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// Awaitable 一次已提交任务的结果凭据。Wait只阻塞调用方自己的goroutine，
// 不阻塞请求主循环；放弃等待不会取消worker侧的任务。
type Awaitable struct {
	done   chan struct{}
	result string
	err    error
}

// Wait 等待任务完成或ctx到期。桥自身不设超时，需要deadline的调用方用ctx叠加。
func (a *Awaitable) Wait(ctx context.Context) (string, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Bridge 把"提交后只能轮询"的进程外任务队列适配成可等待的结果。
// 每个任务由一个后台轮询goroutine按固定间隔查询完成状态，完成时喂给
// 就绪通道——而不是在调度循环的每一拍里自我重排，延迟和CPU开销都有上界。
type Bridge struct {
	queue    interfaces.TaskQueue
	interval time.Duration
	maxWait  time.Duration // 单个任务的轮询上限，超过后放弃并释放轮询goroutine
	logger   *logrus.Logger
}

func NewBridge(queue interfaces.TaskQueue, interval time.Duration, logger *logrus.Logger) *Bridge {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Bridge{queue: queue, interval: interval, maxWait: 15 * time.Minute, logger: logger}
}

// Submit 非阻塞提交任务并返回Awaitable。提交本身失败时直接返回错误。
func (b *Bridge) Submit(ctx context.Context, kind string, args map[string]string) (*Awaitable, error) {
	handle, err := b.queue.Submit(ctx, kind, args)
	if err != nil {
		return nil, fmt.Errorf("提交任务%s失败: %w", kind, err)
	}
	aw := &Awaitable{done: make(chan struct{})}
	go b.pollUntilDone(handle, kind, aw)
	return aw, nil
}

// pollUntilDone 后台轮询直到任务完成或超过轮询上限。队列暂时不可达时记告警继续轮询；
// worker上报的失败原样交给等待方，超过上限时放弃轮询并向等待方报错。
func (b *Bridge) pollUntilDone(handle int64, kind string, aw *Awaitable) {
	deadline := time.Now().Add(b.maxWait)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for range ticker.C {
		done, result, err := b.queue.Poll(context.Background(), handle)
		if !done {
			if err != nil {
				b.logger.WithError(err).Warnf("轮询任务%s[%d]失败，继续重试", kind, handle)
			}
			if time.Now().After(deadline) {
				b.logger.Errorf("任务%s[%d]等待超过%s仍未完成，放弃轮询", kind, handle, b.maxWait)
				aw.err = fmt.Errorf("任务%s[%d]等待超过%s仍未完成", kind, handle, b.maxWait)
				close(aw.done)
				return
			}
			continue
		}
		aw.result = result
		aw.err = err
		close(aw.done)
		return
	}
}
