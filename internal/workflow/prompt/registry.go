package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptReviewDraftV1   PromptID = "review_draft_v1"
	PromptReviewRefineV1  PromptID = "review_refine_v1"
	PromptReviewFormatV1  PromptID = "review_format_v1"
	PromptBlockReformatV1 PromptID = "block_reformat_v1"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	msgs := make([]schema.MessagesTemplate, 0, 2)
	if systemPath != "" {
		system, err := readEmbeddedText(systemPath)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(user))

	tpl := einoprompt.FromMessages(schema.FString, msgs...)
	r.cache[id] = tpl
	return tpl, nil
}

// resolvePromptFiles 返回模板文件路径；systemFile 为空表示该模板只有 user 消息
func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptReviewDraftV1:
		return "templates/review_draft_v1.system.txt", "templates/review_draft_v1.user.txt", nil
	case PromptReviewRefineV1:
		return "templates/review_refine_v1.system.txt", "templates/review_refine_v1.user.txt", nil
	case PromptReviewFormatV1:
		return "templates/review_format_v1.system.txt", "templates/review_format_v1.user.txt", nil
	case PromptBlockReformatV1:
		return "", "templates/block_reformat_v1.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

var (
	guidelinesOnce sync.Once
	guidelinesText string
)

// ReviewGuidelines 返回内置的评论质量准则（固定常量，随二进制发布）
func ReviewGuidelines() string {
	guidelinesOnce.Do(func() {
		text, err := readEmbeddedText("templates/review_guidelines_v1.txt")
		if err != nil {
			// 模板随二进制嵌入，缺失属于构建错误
			panic(fmt.Sprintf("review guidelines template missing: %v", err))
		}
		guidelinesText = text
	})
	return guidelinesText
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
