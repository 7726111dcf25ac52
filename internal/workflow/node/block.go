package node

import (
	"strings"
)

// BlockResult 块提取的判定结果
// 重试循环只依赖该枚举做决策，不做任何临时字符串判断。
type BlockResult int

const (
	// BlockFound 恰好找到一个匹配声明类型的块
	BlockFound BlockResult = iota
	// BlockAmbiguous 找到多个匹配块，payload 取第一个（确定性策略）
	BlockAmbiguous
	// BlockWrongType 存在围栏块但没有一个匹配声明类型
	BlockWrongType
	// BlockNotFound 输出中完全没有围栏语法，payload 为整段裁剪后的文本（宽松分支）
	BlockNotFound
	// BlockEmpty 提取到的 payload 裁剪后为空
	BlockEmpty
)

// String 返回结果名，用于日志与指标标签
func (r BlockResult) String() string {
	switch r {
	case BlockFound:
		return "found"
	case BlockAmbiguous:
		return "ambiguous"
	case BlockWrongType:
		return "wrong_type"
	case BlockNotFound:
		return "not_found"
	case BlockEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

const fenceMarker = "```"

// canonicalTag 归一化内容类型标签，md 与 markdown 视为同义
func canonicalTag(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	if t == "markdown" {
		return "md"
	}
	return t
}

type fencedBlock struct {
	tag     string
	payload string
}

// parseFencedBlocks 按行扫描，收集所有完整的围栏块。
// 开栏为以 ``` 开头且后跟标签的行，闭栏为只含 ``` 的行；
// 未闭合的尾部围栏被忽略。
func parseFencedBlocks(raw string) []fencedBlock {
	lines := strings.Split(raw, "\n")

	var blocks []fencedBlock
	var current *fencedBlock
	var body []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, fenceMarker) {
			if current != nil {
				body = append(body, line)
			}
			continue
		}

		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fenceMarker))
		if current == nil {
			current = &fencedBlock{tag: canonicalTag(rest)}
			body = body[:0]
			continue
		}

		// 处于块内时，任何围栏行都按闭栏处理（围栏不嵌套）
		current.payload = strings.Join(body, "\n")
		blocks = append(blocks, *current)
		current = nil

		// 形如 ```html 的行同时又是下一个块的开栏
		if rest != "" {
			current = &fencedBlock{tag: canonicalTag(rest)}
			body = body[:0]
		}
	}

	return blocks
}

// ExtractBlock 从模型原始输出中提取声明类型的内容块。
// 返回 payload 与判定结果；宽松分支（BlockNotFound）的 payload
// 是整段裁剪后的输出，由调用方决定是否接受。
func ExtractBlock(contentType, raw string) (string, BlockResult) {
	want := canonicalTag(contentType)

	if !strings.Contains(raw, fenceMarker) {
		payload := strings.TrimSpace(raw)
		if payload == "" {
			return "", BlockEmpty
		}
		return payload, BlockNotFound
	}

	blocks := parseFencedBlocks(raw)

	var matching []fencedBlock
	for _, b := range blocks {
		if b.tag == want {
			matching = append(matching, b)
		}
	}

	switch len(matching) {
	case 0:
		return "", BlockWrongType
	case 1:
		payload := strings.TrimSpace(matching[0].payload)
		if payload == "" {
			return "", BlockEmpty
		}
		return payload, BlockFound
	default:
		payload := strings.TrimSpace(matching[0].payload)
		if payload == "" {
			return "", BlockEmpty
		}
		return payload, BlockAmbiguous
	}
}
