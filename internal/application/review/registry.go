package review

import (
	"fmt"
	"strings"

	"mare-review-api/internal/domain/entity"
	workflowport "mare-review-api/internal/workflow/port"
	workflowprompt "mare-review-api/internal/workflow/prompt"
	apperrors "mare-review-api/pkg/errors"
	"mare-review-api/pkg/metrics"
)

// Registry 角色评论器注册表
// 启动时由完整档案集一次性构建，此后只读；并发查找无需加锁，
// 运行期不增删条目。对外暴露的模型名集合即角色名集合。
type Registry struct {
	reviewers map[string]*Reviewer
	names     []string
}

// NewRegistry 为每个角色档案实例化一条评论流水线并按名称注册。
// 档案名重复或不合法时返回错误（启动期快速失败）。
func NewRegistry(profiles []entity.PersonaProfile, factory workflowport.ChatModelFactory, opts Options) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no persona profiles to register")
	}

	// 所有流水线共享同一提示词注册表
	promptRegistry := workflowprompt.NewRegistry()

	reviewers := make(map[string]*Reviewer, len(profiles))
	names := make([]string, 0, len(profiles))

	for i := range profiles {
		p := profiles[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(p.Name)
		if _, exists := reviewers[name]; exists {
			return nil, fmt.Errorf("duplicate persona name: %q", name)
		}
		reviewers[name] = NewReviewer(p, factory, promptRegistry, opts)
		names = append(names, name)
	}

	metrics.RegisteredPersonas.Set(float64(len(names)))

	return &Registry{
		reviewers: reviewers,
		names:     names,
	}, nil
}

// Resolve 按模型名查找评论器；未注册的名称返回 ErrModelNotFound。
// 进程生命周期内对同一名称恒返回同一实例。
func (r *Registry) Resolve(name string) (*Reviewer, error) {
	reviewer, ok := r.reviewers[name]
	if !ok {
		return nil, apperrors.ErrModelNotFound
	}
	return reviewer, nil
}

// Names 返回已注册的模型名列表（注册顺序）
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Size 返回已注册的角色数量
func (r *Registry) Size() int {
	return len(r.reviewers)
}
