package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 战绩流水行的固定格式（天凤单一来源，非通用文本解析）：
//   L<lobby>|<time_cost>|<date> <time>|<rule_name>|<ref_or_placeholder>|<result_text>
const (
	fieldCount     = 6
	lobbyMarker    = "L"
	playTimeLayout = "2006-01-02 15:04"
)

// deltaRegex 得点变动模式：带符号的整数或一位小数，作为result_text的分隔符
var deltaRegex = regexp.MustCompile(`[+-]\d+(?:\.\d+)?`)

// ParseError 行解析失败，Field标明出错字段
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("战绩行解析失败（%s）: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RecordResult 一行战绩中单个玩家的名次与得点
type RecordResult struct {
	Name       string
	PointDelta float64
	Rank       int // 得点降序的1起名次，同分保持原文顺序
}

// RecordLine 解析后的战绩行（纯值对象，同一输入行解析结果恒等）
type RecordLine struct {
	Lobby       string
	TimeCost    *int // 对局耗时（分钟），缺失或非数字时为nil
	PlayTime    time.Time
	RuleName    string
	RefCode     *string // 占位符时为nil
	Results     []RecordResult // 已按名次排序
	RawLine     string
	ContentHash string
}

// Parser 战绩行解析器，持有编译好的牌谱ref正则
type Parser struct {
	refRegex *regexp.Regexp
}

// NewParser 创建解析器；refPattern的第一个捕获组即规范化后的ref
func NewParser(refPattern string) (*Parser, error) {
	re, err := regexp.Compile(refPattern)
	if err != nil {
		return nil, fmt.Errorf("编译ref正则失败: %w", err)
	}
	return &Parser{refRegex: re}, nil
}

// NormalizeRef 规范化牌谱ref：取第一个捕获组；不匹配返回空串
func (p *Parser) NormalizeRef(raw string) string {
	m := p.refRegex.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ParseRecordLine 解析一行战绩流水，失败返回*ParseError
func (p *Parser) ParseRecordLine(line string) (*RecordLine, error) {
	trimmed := strings.TrimSpace(line)
	fields := strings.Split(trimmed, "|")
	if len(fields) != fieldCount {
		return nil, &ParseError{Field: "line", Err: fmt.Errorf("字段数应为%d，实际%d", fieldCount, len(fields))}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	rec := &RecordLine{
		RawLine:     line,
		ContentHash: ContentHash(line),
	}

	// lobby：去掉固定前缀标记
	rec.Lobby = strings.TrimPrefix(fields[0], lobbyMarker)

	// time_cost：缺失或非数字不算错误，置nil
	if cost, err := strconv.Atoi(fields[1]); err == nil {
		rec.TimeCost = &cost
	}

	// play_time：无对局时间则整行无法使用，视为解析失败
	playTime, err := time.Parse(playTimeLayout, fields[2])
	if err != nil {
		return nil, &ParseError{Field: "play_time", Err: err}
	}
	rec.PlayTime = playTime

	rec.RuleName = fields[3]

	// ref：占位符（全为'-'）表示无牌谱，否则取第一个匹配
	if !isRefPlaceholder(fields[4]) {
		if ref := p.NormalizeRef(fields[4]); ref != "" {
			rec.RefCode = &ref
		}
	}

	// result_text：得点模式做分隔符，切出的片段是玩家名，匹配本身是得点
	results, err := parseResults(fields[5])
	if err != nil {
		return nil, &ParseError{Field: "result", Err: err}
	}
	rec.Results = results

	return rec, nil
}

// isRefPlaceholder 占位符为若干个'-'（观测到的形态是三个）
func isRefPlaceholder(field string) bool {
	return field != "" && strings.Trim(field, "-") == ""
}

// parseResults 解析结算文本并按得点降序定名次（稳定排序，同分保持原序）
func parseResults(text string) ([]RecordResult, error) {
	deltas := deltaRegex.FindAllString(text, -1)
	names := deltaRegex.Split(text, -1)
	// 文本以得点结尾时split会多出一个空尾段
	if len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) != len(deltas) {
		return nil, fmt.Errorf("玩家名与得点数量不一致: %d vs %d", len(names), len(deltas))
	}
	results := make([]RecordResult, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("第%d个玩家名为空", i+1)
		}
		// 同一局里一个玩家只会出现一次，重名行无法落库（关联表按玩家唯一）
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("玩家%q在同一行出现多次", name)
		}
		seen[name] = struct{}{}
		delta, err := strconv.ParseFloat(deltas[i], 64)
		if err != nil {
			return nil, fmt.Errorf("得点%q无法解析: %w", deltas[i], err)
		}
		results = append(results, RecordResult{Name: name, PointDelta: delta})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PointDelta > results[j].PointDelta
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}
