// Package dto 提供 HTTP 层数据传输对象
//
// 对外契约遵循 OpenAI Chat Completion 接口形状，
// 调用方可直接使用现成的 OpenAI 客户端接入。
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest Chat Completion 请求体
type ChatCompletionRequest struct {
	Model       string        `json:"model" binding:"required"`
	Messages    []ChatMessage `json:"messages" binding:"required"`
	Stream      bool          `json:"stream"`
	Temperature *float32      `json:"temperature"`
	MaxTokens   *int          `json:"max_tokens"`
}

// ChatCompletionChoice 响应候选项
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage Token 用量统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse 非流式响应体
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ChunkDelta 流式增量内容
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice 流式响应候选项
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk 流式响应块
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ModelObject 模型列表条目
type ModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList 模型列表响应
type ModelList struct {
	Object string        `json:"object"`
	Data   []ModelObject `json:"data"`
}

// APIError OpenAI 风格错误体
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse 错误响应信封
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// 错误类型常量，对齐 OpenAI 的 error.type 取值
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeServer         = "server_error"
)

// Error 返回 OpenAI 风格错误响应
func Error(c *gin.Context, httpCode int, errType, code, message string) {
	c.JSON(httpCode, ErrorResponse{
		Error: APIError{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	})
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, code, message string) {
	Error(c, http.StatusBadRequest, ErrorTypeInvalidRequest, code, message)
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, code, message string) {
	Error(c, http.StatusNotFound, ErrorTypeNotFound, code, message)
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, code, message string) {
	Error(c, http.StatusInternalServerError, ErrorTypeServer, code, message)
}
