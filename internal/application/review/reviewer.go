// Package review 提供角色评论应用服务
package review

import (
	"context"
	"strings"
	"time"

	"mare-review-api/internal/domain/entity"
	workflowchain "mare-review-api/internal/workflow/chain"
	wfmodel "mare-review-api/internal/workflow/model"
	workflowport "mare-review-api/internal/workflow/port"
	workflowprompt "mare-review-api/internal/workflow/prompt"
	apperrors "mare-review-api/pkg/errors"
	"mare-review-api/pkg/logger"
	"mare-review-api/pkg/metrics"
)

// Options 流水线运行参数，对注册表内所有角色生效
type Options struct {
	// Provider 底层 LLM 提供商名，空值表示默认提供商
	Provider string
	// MaxAttempts 单阶段块提取尝试预算
	MaxAttempts int
}

// Reviewer 绑定单个角色档案的评论流水线实例
// 一个角色对应一个实例，档案只读，可被并发请求共享。
// 角色差异完全由档案值参数化，不做类型层特化。
type Reviewer struct {
	profile entity.PersonaProfile
	chain   *workflowchain.ReviewChain
	opts    Options
}

// NewReviewer 创建角色评论器
func NewReviewer(profile entity.PersonaProfile, factory workflowport.ChatModelFactory, promptRegistry *workflowprompt.Registry, opts Options) *Reviewer {
	return &Reviewer{
		profile: profile,
		chain:   workflowchain.NewReviewChain(factory, promptRegistry),
		opts:    opts,
	}
}

// Profile 返回绑定的角色档案
func (r *Reviewer) Profile() entity.PersonaProfile {
	return r.profile
}

// RequestParams 单次请求级别的采样参数，nil 字段沿用提供商默认值
type RequestParams struct {
	Temperature *float32
	MaxTokens   *int
}

// Review 对故事文本运行三段流水线，返回终态 HTML 评论块。
// 任一阶段失败时整体失败，不产出部分结果。
func (r *Reviewer) Review(ctx context.Context, story string) (*wfmodel.ReviewOutput, error) {
	return r.ReviewWithParams(ctx, story, RequestParams{})
}

// ReviewWithParams 同 Review，附带请求级采样参数
func (r *Reviewer) ReviewWithParams(ctx context.Context, story string, params RequestParams) (*wfmodel.ReviewOutput, error) {
	if strings.TrimSpace(story) == "" {
		return nil, apperrors.ErrEmptyStory
	}

	ctx = logger.WithContext(ctx, logger.PersonaKey, r.profile.Name)
	start := time.Now()

	out, err := r.chain.Invoke(ctx, &wfmodel.ReviewInput{
		Reviewer: wfmodel.ReviewerProfile{
			Name:        r.profile.Name,
			Description: r.profile.Description,
			Quotes:      r.profile.Quotes,
		},
		Story:       story,
		Provider:    r.opts.Provider,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		MaxAttempts: r.opts.MaxAttempts,
	})

	duration := time.Since(start).Seconds()
	if err != nil {
		metrics.ReviewGenerationTotal.WithLabelValues(r.profile.Name, "error").Inc()
		return nil, err
	}

	metrics.ReviewGenerationTotal.WithLabelValues(r.profile.Name, "success").Inc()
	metrics.ReviewGenerationDuration.WithLabelValues(r.profile.Name).Observe(duration)

	logger.Info(ctx, "review generated",
		"persona", r.profile.Name,
		"stages", out.Stages,
		"attempts", out.Attempts,
		"retried", out.Retried,
	)
	return out, nil
}
