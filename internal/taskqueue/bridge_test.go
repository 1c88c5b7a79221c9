package taskqueue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeQueue 测试用TaskQueue：前pendingPolls次轮询返回未完成
type fakeQueue struct {
	mu           sync.Mutex
	pendingPolls int
	result       string
	workerErr    error
	submitErr    error
	submitted    []string
}

func (q *fakeQueue) Submit(ctx context.Context, kind string, args map[string]string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return 0, q.submitErr
	}
	q.submitted = append(q.submitted, kind)
	return int64(len(q.submitted)), nil
}

func (q *fakeQueue) Poll(ctx context.Context, handle int64) (bool, string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pendingPolls > 0 {
		q.pendingPolls--
		return false, "", nil
	}
	return true, q.result, q.workerErr
}

func newTestBridge(queue *fakeQueue) *Bridge {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewBridge(queue, time.Millisecond, logger)
}

func TestBridgeResolvesAfterPolling(t *testing.T) {
	queue := &fakeQueue{pendingPolls: 3, result: `{"name":["A"]}`}
	bridge := newTestBridge(queue)

	aw, err := bridge.Submit(context.Background(), TaskFetchLog, map[string]string{"ref": "x"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := aw.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if result != `{"name":["A"]}` {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestBridgePropagatesWorkerError(t *testing.T) {
	workerErr := errors.New("非法状态码: [404]")
	queue := &fakeQueue{workerErr: workerErr}
	bridge := newTestBridge(queue)

	aw, err := bridge.Submit(context.Background(), TaskFetchRecords, map[string]string{"name": "Alice"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := aw.Wait(ctx); !errors.Is(err, workerErr) {
		t.Fatalf("expected the worker error back, got %v", err)
	}
}

func TestBridgeWaitHonorsContext(t *testing.T) {
	// 任务永远不完成：放弃等待只影响等待方，轮询goroutine照常退出不掉
	queue := &fakeQueue{pendingPolls: 1 << 30}
	bridge := newTestBridge(queue)

	aw, err := bridge.Submit(context.Background(), TaskPing, nil)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := aw.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBridgeGivesUpAfterMaxWait(t *testing.T) {
	// worker侧一直不完成任务时轮询不会无限持续，到上限后向等待方报错
	queue := &fakeQueue{pendingPolls: 1 << 30}
	bridge := newTestBridge(queue)
	bridge.maxWait = 10 * time.Millisecond

	aw, err := bridge.Submit(context.Background(), TaskFetchLog, map[string]string{"ref": "x"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := aw.Wait(ctx); err == nil {
		t.Fatal("expected a give-up error after the poll ceiling, got nil")
	} else if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("the error must come from the bridge, not the wait context: %v", err)
	}
}

func TestBridgeSubmitFailure(t *testing.T) {
	queue := &fakeQueue{submitErr: errors.New("queue down")}
	bridge := newTestBridge(queue)

	if _, err := bridge.Submit(context.Background(), TaskPing, nil); err == nil {
		t.Fatal("expected submit error, got nil")
	}
}
