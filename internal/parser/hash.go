package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash 战绩行内容指纹：sha256(trim后的原始行)的hex，64字符。
// 只忽略首尾空白，其余任何差异都会得到不同指纹；入库列上有唯一索引兜底。
func ContentHash(line string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(line)))
	return hex.EncodeToString(sum[:])
}
