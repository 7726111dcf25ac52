// Package entity 提供领域实体定义
package entity

import (
	"fmt"
	"strings"
)

// PersonaProfile 评论角色档案
// 启动时从档案数据源加载一次，进程生命周期内只读。
type PersonaProfile struct {
	// Name 角色名，同时作为对外暴露的模型名（调度键）
	Name string `json:"name"`
	// Description 角色性格与语气描述
	Description string `json:"profile"`
	// Quotes 体现角色语气的台词示例，顺序有意义
	Quotes []string `json:"quotes"`
}

// Validate 校验档案数据完整性
func (p *PersonaProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("persona profile is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("persona name is empty")
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("persona %q has empty profile text", p.Name)
	}
	return nil
}
