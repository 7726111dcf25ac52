// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mare-review-api/internal/application/review"
	"mare-review-api/internal/infrastructure/persistence/redis"
	"mare-review-api/internal/interfaces/http/dto"
	workflowchain "mare-review-api/internal/workflow/chain"
	wfmodel "mare-review-api/internal/workflow/model"
	apperrors "mare-review-api/pkg/errors"
	"mare-review-api/pkg/logger"
)

// ChatHandler Chat Completion 处理器
// 将 OpenAI 形状的请求适配到评论流水线：model 字段即角色名，
// 所有消息正文拼接为待评故事。
type ChatHandler struct {
	registry *review.Registry
	cache    *redis.ReviewCache
}

// NewChatHandler 创建 Chat Completion 处理器
func NewChatHandler(registry *review.Registry, cache *redis.ReviewCache) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		cache:    cache,
	}
}

// Completion 处理 POST /v1/chat/completions
func (h *ChatHandler) Completion(c *gin.Context) {
	var req dto.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	reviewer, err := h.registry.Resolve(req.Model)
	if err != nil {
		if errors.Is(err, apperrors.ErrModelNotFound) {
			dto.NotFound(c, "model_not_found",
				fmt.Sprintf("The model '%s' does not exist", req.Model))
			return
		}
		dto.InternalError(c, "", "failed to resolve model")
		return
	}

	story := joinMessages(req.Messages)
	if strings.TrimSpace(story) == "" {
		dto.BadRequest(c, "empty_story", "messages contain no reviewable text")
		return
	}

	ctx := c.Request.Context()
	params := review.RequestParams{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	// 缓存命中时没有新的生成，usage 归零
	var out *wfmodel.ReviewOutput
	html, cached, err := h.cache.GetOrGenerate(ctx, req.Model, story, func() (string, error) {
		result, genErr := reviewer.ReviewWithParams(ctx, story, params)
		if genErr != nil {
			return "", genErr
		}
		out = result
		return result.Review.Payload, nil
	})
	if err != nil {
		h.writeError(c, req.Model, err)
		return
	}

	usage := dto.Usage{}
	if !cached && out != nil {
		usage = dto.Usage{
			PromptTokens:     out.Meta.PromptTokens,
			CompletionTokens: out.Meta.CompletionTokens,
			TotalTokens:      out.Meta.PromptTokens + out.Meta.CompletionTokens,
		}
	}

	if req.Stream {
		h.writeStream(c, req.Model, html)
		return
	}

	c.JSON(http.StatusOK, dto.ChatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []dto.ChatCompletionChoice{
			{
				Index: 0,
				Message: dto.ChatMessage{
					Role:    "assistant",
					Content: html,
				},
				FinishReason: "stop",
			},
		},
		Usage: usage,
	})
}

// writeError 将流水线错误映射为 OpenAI 错误体
// 提取失败的原始模型输出只进日志，不出现在响应里。
func (h *ChatHandler) writeError(c *gin.Context, model string, err error) {
	ctx := c.Request.Context()

	if errors.Is(err, apperrors.ErrEmptyStory) {
		dto.BadRequest(c, "empty_story", "messages contain no reviewable text")
		return
	}

	var extractionErr *workflowchain.ExtractionError
	if errors.As(err, &extractionErr) {
		logger.Error(ctx, "review generation failed", err,
			"model", model,
			"content_type", extractionErr.ContentType,
			"attempts", extractionErr.Attempts,
			"last_raw_output", extractionErr.LastRawOutput,
		)
		dto.InternalError(c, "review_generation_failed",
			"the reviewer could not produce a well-formed review")
		return
	}

	logger.Error(ctx, "review generation failed", err, "model", model)
	dto.InternalError(c, "review_generation_failed",
		"the reviewer could not produce a well-formed review")
}

// writeStream 以 SSE 输出完整评论
// 流水线不支持增量产出，整篇评论作为单个增量块下发，
// 随后是终止块和 [DONE] 哨兵，兼容标准 OpenAI 流式客户端。
func (h *ChatHandler) writeStream(c *gin.Context, model, content string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	id := completionID()
	created := time.Now().Unix()

	writeChunk(c, dto.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []dto.ChunkChoice{
			{
				Index: 0,
				Delta: dto.ChunkDelta{Role: "assistant", Content: content},
			},
		},
	})

	stop := "stop"
	writeChunk(c, dto.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []dto.ChunkChoice{
			{
				Index:        0,
				Delta:        dto.ChunkDelta{},
				FinishReason: &stop,
			},
		},
	})

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// writeChunk 写出单个 SSE 数据块
func writeChunk(c *gin.Context, chunk dto.ChatCompletionChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// joinMessages 将全部消息正文按空行拼接为一段故事文本
// 不区分消息角色：调用方无论把故事放在 system 还是 user 消息里
// 都能得到相同结果。
func joinMessages(messages []dto.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if text := strings.TrimSpace(m.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// completionID 生成响应 ID
func completionID() string {
	return "chatcmpl-" + uuid.New().String()
}
