package node

import (
	"fmt"
	"regexp"
	"strings"

	wfmodel "mare-review-api/internal/workflow/model"
)

// Section 提示词中的一个具名变量段
type Section struct {
	Name    string
	Content string
}

// 段名必须是合法标识符：不含空白、不含定界符字符
var sectionNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// 渲染格式保留的控制段名
var reservedSectionNames = map[string]struct{}{
	"TASK": {},
}

// ValidSectionName 校验变量段名是否可用
func ValidSectionName(name string) bool {
	if !sectionNameRe.MatchString(name) {
		return false
	}
	_, reserved := reservedSectionNames[strings.ToUpper(name)]
	return !reserved
}

// BuildSectionsBlock 将具名变量渲染为带标签定界的文本段：
//
//	<NAME>
//	content
//	</NAME>
//
// 各段之间以空行分隔，使模型能够区分不同输入。
// 段内容即使包含围栏语法也不会破坏结构——块提取在解析侧按围栏
// 配对处理（见 ExtractBlock），渲染侧不做转义。
func BuildSectionsBlock(sections []Section) (string, error) {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if !ValidSectionName(s.Name) {
			return "", fmt.Errorf("invalid section name: %q", s.Name)
		}
		content := strings.TrimRight(s.Content, "\n")
		parts = append(parts, "<"+s.Name+">\n"+content+"\n</"+s.Name+">")
	}
	return strings.Join(parts, "\n\n"), nil
}

// BuildReviewerBlock 将角色档案渲染为带标签的子段，
// 让模型能读到角色的名字、性格描述与语气示例。
func BuildReviewerBlock(p wfmodel.ReviewerProfile) string {
	lines := make([]string, 0, len(p.Quotes)+3)
	lines = append(lines, "Name: "+strings.TrimSpace(p.Name))
	lines = append(lines, "Personality: "+strings.TrimSpace(p.Description))
	if len(p.Quotes) > 0 {
		lines = append(lines, "Memorable quotes:")
		for _, q := range p.Quotes {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			lines = append(lines, "- "+q)
		}
	}
	return strings.Join(lines, "\n")
}
