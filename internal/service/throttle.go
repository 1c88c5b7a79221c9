package service

import "time"

// DefaultThrottleCooldown 同一玩家两次批量抓取的最小间隔
const DefaultThrottleCooldown = 24 * time.Hour

// ThrottleGate 按玩家的抓取节流闸。
// 纯判定函数：只比较传入的时间戳，不碰存储；时间戳的更新由调用方在同一
// 工作单元里提交，避免两个并发请求同时过闸。
type ThrottleGate struct {
	cooldown time.Duration
}

func NewThrottleGate(cooldown time.Duration) *ThrottleGate {
	if cooldown <= 0 {
		cooldown = DefaultThrottleCooldown
	}
	return &ThrottleGate{cooldown: cooldown}
}

// Allow 上次检查不存在或已早于冷却窗口时放行；放行后调用方必须把时间戳更新为now并持久化
func (g *ThrottleGate) Allow(lastCheck *time.Time, now time.Time) bool {
	if lastCheck == nil {
		return true
	}
	return lastCheck.Before(now.Add(-g.cooldown))
}

// RetryAfter 被拒时告知调用方最早的重试时间
func (g *ThrottleGate) RetryAfter(lastCheck time.Time) time.Time {
	return lastCheck.Add(g.cooldown)
}
