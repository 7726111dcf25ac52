// Package model 提供工作流层的输入输出模型
package model

import "time"

// ContentType 类型化内容块的声明标签
type ContentType = string

const (
	// ContentTypeMarkdown 结构化文本块（markdown），别名 "markdown"
	ContentTypeMarkdown ContentType = "md"
	// ContentTypeHTML 展示用标记块
	ContentTypeHTML ContentType = "html"
)

// TypedBlock 从模型输出中提取的单个类型化内容块
// 生命周期：由块提取协议产生，立即被下一阶段或响应适配层消费，不落盘。
type TypedBlock struct {
	ContentType ContentType
	Payload     string
}

// ReviewerProfile 工作流层的角色档案视图
type ReviewerProfile struct {
	Name        string
	Description string
	Quotes      []string
}

// ReviewInput 评论流水线输入
type ReviewInput struct {
	Reviewer ReviewerProfile
	Story    string

	// Provider/Model 为空时使用默认提供商配置
	Provider    string
	Model       string
	Temperature *float32
	MaxTokens   *int

	// MaxAttempts 单阶段块提取的尝试预算（<=0 时使用默认值）
	MaxAttempts int
}

// LLMUsageMeta LLM 调用的用量元数据
type LLMUsageMeta struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	GeneratedAt      time.Time
}

// ReviewOutput 评论流水线结果
type ReviewOutput struct {
	// Review 终态输出：HTML 格式的评论块
	Review TypedBlock
	// Stages 实际执行的阶段数（成功时恒为 3）
	Stages int
	// Attempts 三个阶段累计的块提取尝试次数
	Attempts int
	// Retried 是否有任一阶段发生过重试
	Retried bool

	Meta LLMUsageMeta
}
