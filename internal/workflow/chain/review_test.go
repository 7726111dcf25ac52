package chain

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wfmodel "mare-review-api/internal/workflow/model"
	workflowprompt "mare-review-api/internal/workflow/prompt"
)

// stubFactory 恒返回同一个假模型的工厂
type stubFactory struct {
	model model.BaseChatModel
}

func (f *stubFactory) Get(_ context.Context, _ string) (model.BaseChatModel, error) {
	return f.model, nil
}

func testReviewInput(story string) *wfmodel.ReviewInput {
	return &wfmodel.ReviewInput{
		Reviewer: wfmodel.ReviewerProfile{
			Name:        "Applejack",
			Description: "Honest, hardworking, down to earth.",
			Quotes:      []string{"Yeehaw!"},
		},
		Story:       story,
		MaxAttempts: 3,
	}
}

func TestReviewChain_HappyPath(t *testing.T) {
	usage := &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 20}
	m := &scriptedModel{responses: []scriptedResponse{
		{content: "```md\nDraft review body.\n```", usage: usage},
		{content: "```md\nRefined review body, sugarcube.\n```", usage: usage},
		{content: "```html\n<p>Refined review body, sugarcube.</p>\n```", usage: usage},
	}}
	c := NewReviewChain(&stubFactory{model: m}, workflowprompt.NewRegistry())

	out, err := c.Invoke(context.Background(), testReviewInput("Once upon a time in Ponyville."))

	require.NoError(t, err)
	assert.Equal(t, wfmodel.ContentTypeHTML, out.Review.ContentType)
	assert.Equal(t, "<p>Refined review body, sugarcube.</p>", out.Review.Payload)
	assert.Equal(t, 3, out.Stages)
	assert.Equal(t, 3, out.Attempts)
	assert.False(t, out.Retried)
	assert.Equal(t, 30, out.Meta.PromptTokens)
	assert.Equal(t, 60, out.Meta.CompletionTokens)
	require.Equal(t, 3, m.callCount())

	// 阶段一：角色档案 + 故事 + 评论准则
	draftPrompt := m.call(0)[len(m.call(0))-1].Content
	assert.Contains(t, draftPrompt, "Name: Applejack")
	assert.Contains(t, draftPrompt, "Once upon a time in Ponyville.")
	assert.Contains(t, draftPrompt, "<REVIEW_GUIDELINES>")

	// 阶段二：在初稿基础上润色，仍可见故事原文
	refinePrompt := m.call(1)[len(m.call(1))-1].Content
	assert.Contains(t, refinePrompt, "Draft review body.")
	assert.Contains(t, refinePrompt, "Once upon a time in Ponyville.")

	// 阶段三：只排版润色稿，不再接触故事
	formatPrompt := m.call(2)[len(m.call(2))-1].Content
	assert.Contains(t, formatPrompt, "Refined review body, sugarcube.")
	assert.NotContains(t, formatPrompt, "Once upon a time in Ponyville.")
}

func TestReviewChain_RetriedFlag(t *testing.T) {
	m := &scriptedModel{responses: []scriptedResponse{
		{content: "no fences at all, lenient branch takes it"},
		{content: "```html\nwrong type once\n```"},
		{content: "```md\nRefined.\n```"},
		{content: "```html\n<p>Refined.</p>\n```"},
	}}
	c := NewReviewChain(&stubFactory{model: m}, workflowprompt.NewRegistry())

	out, err := c.Invoke(context.Background(), testReviewInput("A story."))

	require.NoError(t, err)
	assert.True(t, out.Retried)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, 3, out.Stages)
}

func TestReviewChain_StageFailureAborts(t *testing.T) {
	// 阶段二耗尽预算后整条流水线失败，阶段三不再执行
	m := &scriptedModel{responses: []scriptedResponse{
		{content: "```md\nDraft.\n```"},
		{content: "```html\nbad\n```"},
		{content: "```html\nbad\n```"},
		{content: "```html\nbad\n```"},
		{content: "```html\n<p>should never be requested</p>\n```"},
	}}
	c := NewReviewChain(&stubFactory{model: m}, workflowprompt.NewRegistry())

	out, err := c.Invoke(context.Background(), testReviewInput("A story."))

	require.Error(t, err)
	assert.Nil(t, out)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, wfmodel.ContentTypeMarkdown, extractionErr.ContentType)
	assert.Equal(t, 4, m.callCount())
}

func TestReviewChain_EmptyStory(t *testing.T) {
	c := NewReviewChain(&stubFactory{model: &scriptedModel{}}, workflowprompt.NewRegistry())

	_, err := c.Invoke(context.Background(), testReviewInput("   \n"))
	assert.Error(t, err)

	_, err = c.Invoke(context.Background(), nil)
	assert.Error(t, err)
}
