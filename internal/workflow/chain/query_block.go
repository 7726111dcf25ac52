// Package chain 提供评论生成工作流
package chain

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	wfmodel "mare-review-api/internal/workflow/model"
	wfnode "mare-review-api/internal/workflow/node"
	workflowprompt "mare-review-api/internal/workflow/prompt"
	"mare-review-api/pkg/metrics"
)

// DefaultMaxAttempts 单次块查询的默认尝试预算（含首次调用）
const DefaultMaxAttempts = 3

// ExtractionError 块提取在预算内未能得到合法类型块
// LastRawOutput 仅用于内部诊断，Error() 不包含原始输出。
type ExtractionError struct {
	ContentType   string
	Attempts      int
	LastRawOutput string
	Err           error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("block extraction failed: content_type=%s attempts=%d: %v", e.ContentType, e.Attempts, e.Err)
	}
	return fmt.Sprintf("block extraction failed: content_type=%s attempts=%d", e.ContentType, e.Attempts)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// BlockStats 单次块查询的统计信息
type BlockStats struct {
	// Attempts 实际消耗的尝试次数
	Attempts int
	// PromptTokens/CompletionTokens 各次调用累计的 Token 用量（提供商上报时）
	PromptTokens     int
	CompletionTokens int
}

// BlockQuery 一次类型化块查询的参数
type BlockQuery struct {
	PromptID    workflowprompt.PromptID
	ContentType wfmodel.ContentType
	Sections    []wfnode.Section
	// MaxAttempts <=0 时使用 DefaultMaxAttempts
	MaxAttempts int
	Options     []model.Option
}

// QueryBlock 块提取协议：渲染提示词、调用底层模型、从输出中提取
// 恰好一个声明类型的内容块；格式不合法时发起纠正性追问，传输错误
// 在同一预算内重试。预算耗尽返回 ExtractionError。
//
// 跨调用无共享状态，不同请求可并发调用。
func QueryBlock(ctx context.Context, chatModel model.BaseChatModel, registry *workflowprompt.Registry, q BlockQuery) (wfmodel.TypedBlock, BlockStats, error) {
	var zero wfmodel.TypedBlock

	if chatModel == nil {
		return zero, BlockStats{}, fmt.Errorf("chat model is nil")
	}
	maxAttempts := q.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	sectionsBlock, err := wfnode.BuildSectionsBlock(q.Sections)
	if err != nil {
		return zero, BlockStats{}, err
	}

	tpl, err := registry.ChatTemplate(q.PromptID)
	if err != nil {
		return zero, BlockStats{}, err
	}
	vars := map[string]any{
		"content_type": q.ContentType,
		"sections":     sectionsBlock,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return zero, BlockStats{}, err
	}

	// 纠正性追问消息按需渲染一次
	var reformatMsg *schema.Message

	stats := BlockStats{}
	var lastRaw string
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stats.Attempts = attempt

		outMsg, err := chatModel.Generate(ctx, msgs, q.Options...)
		if err != nil {
			// 取消不占用重试预算，直接向上传播
			if ctx.Err() != nil {
				return zero, stats, ctx.Err()
			}
			metrics.BlockExtractionTotal.WithLabelValues(q.ContentType, "transport_error").Inc()
			if attempt < maxAttempts {
				metrics.ReviewStageRetryTotal.WithLabelValues(string(q.PromptID), "transport_error").Inc()
			}
			lastErr = err
			continue
		}
		if outMsg == nil {
			lastErr = fmt.Errorf("empty llm response")
			continue
		}
		if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
			stats.PromptTokens += outMsg.ResponseMeta.Usage.PromptTokens
			stats.CompletionTokens += outMsg.ResponseMeta.Usage.CompletionTokens
		}

		raw := outMsg.Content
		payload, result := wfnode.ExtractBlock(q.ContentType, raw)
		metrics.BlockExtractionTotal.WithLabelValues(q.ContentType, result.String()).Inc()

		switch result {
		case wfnode.BlockFound, wfnode.BlockAmbiguous, wfnode.BlockNotFound:
			// BlockAmbiguous：取第一个匹配块（确定性策略）
			// BlockNotFound：输出中完全没有围栏语法，整段文本即 payload（宽松分支）
			return wfmodel.TypedBlock{ContentType: q.ContentType, Payload: payload}, stats, nil
		}

		// 格式不合法：带上上一次输出发起纠正性追问
		lastRaw = raw
		lastErr = nil
		if attempt < maxAttempts {
			metrics.ReviewStageRetryTotal.WithLabelValues(string(q.PromptID), result.String()).Inc()
			if reformatMsg == nil {
				reformatMsg, err = formatReformatMessage(ctx, registry, q.ContentType)
				if err != nil {
					return zero, stats, err
				}
			}
			msgs = append(msgs, schema.AssistantMessage(raw, nil), reformatMsg)
		}
	}

	return zero, stats, &ExtractionError{
		ContentType:   q.ContentType,
		Attempts:      maxAttempts,
		LastRawOutput: lastRaw,
		Err:           lastErr,
	}
}

func formatReformatMessage(ctx context.Context, registry *workflowprompt.Registry, contentType wfmodel.ContentType) (*schema.Message, error) {
	tpl, err := registry.ChatTemplate(workflowprompt.PromptBlockReformatV1)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, map[string]any{"content_type": contentType})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("reformat template produced no message")
	}
	return msgs[len(msgs)-1], nil
}
