package service

import "fmt"

// ErrorKind 采集失败分类（对外只透出Outcome，分类留在核心内部）
type ErrorKind int

const (
	KindNone             ErrorKind = iota // 成功
	KindInvalidReference                  // 输入ref非法，不可重试
	KindFetchFailed                       // 抓取或载荷校验失败，可稍后重试
	KindMalformedRecord                   // 批次内单行坏数据，跳过不中断
	KindDuplicateKey                      // 竞态下的重复写入，视同已存在
	KindPlayerNotFound                    // 战绩流水无任何可用数据
	KindThrottled                         // 节流拒绝，需等到冷却结束
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindInvalidReference:
		return "invalid_reference"
	case KindFetchFailed:
		return "fetch_failed"
	case KindMalformedRecord:
		return "malformed_record"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindPlayerNotFound:
		return "player_not_found"
	case KindThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// IngestError 带分类的采集错误，可携带底层原因（替代异常链）
type IngestError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *IngestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *IngestError) Unwrap() error { return e.Cause }

func newIngestError(kind ErrorKind, message string, cause error) *IngestError {
	return &IngestError{Kind: kind, Message: message, Cause: cause}
}

// Outcome 返回给调用层的统一结果：成败加一句人话，失败分类不外漏
type Outcome struct {
	OK      bool      `json:"ok"`
	Message string    `json:"message"`
	Count   int       `json:"count,omitempty"` // 批量采集时本次新增条数
	Kind    ErrorKind `json:"-"`
}

func successOutcome(message string, count int) Outcome {
	return Outcome{OK: true, Message: message, Count: count}
}

func failureOutcome(kind ErrorKind, message string) Outcome {
	return Outcome{OK: false, Message: message, Kind: kind}
}
