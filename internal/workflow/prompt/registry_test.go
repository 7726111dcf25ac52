package prompt

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatTemplate_AllPromptIDs(t *testing.T) {
	r := NewRegistry()
	vars := map[string]any{
		"content_type": "md",
		"sections":     "<STORY>\nOnce.\n</STORY>",
	}

	for _, id := range []PromptID{
		PromptReviewDraftV1,
		PromptReviewRefineV1,
		PromptReviewFormatV1,
		PromptBlockReformatV1,
	} {
		tpl, err := r.ChatTemplate(id)
		require.NoError(t, err, "prompt %s", id)

		msgs, err := tpl.Format(context.Background(), vars)
		require.NoError(t, err, "prompt %s", id)
		require.NotEmpty(t, msgs, "prompt %s", id)

		// 变量必须实际代入，不残留占位符
		for _, m := range msgs {
			assert.NotContains(t, m.Content, "{content_type}")
			assert.NotContains(t, m.Content, "{sections}")
		}
	}
}

func TestChatTemplate_DraftShape(t *testing.T) {
	r := NewRegistry()
	tpl, err := r.ChatTemplate(PromptReviewDraftV1)
	require.NoError(t, err)

	msgs, err := tpl.Format(context.Background(), map[string]any{
		"content_type": "md",
		"sections":     "<STORY>\nOnce.\n</STORY>",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "md")
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "<STORY>")
	assert.Contains(t, msgs[1].Content, "<TASK>")
}

func TestChatTemplate_ReformatIsUserOnly(t *testing.T) {
	r := NewRegistry()
	tpl, err := r.ChatTemplate(PromptBlockReformatV1)
	require.NoError(t, err)

	msgs, err := tpl.Format(context.Background(), map[string]any{"content_type": "html"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "html")
}

func TestChatTemplate_Unknown(t *testing.T) {
	_, err := NewRegistry().ChatTemplate(PromptID("nope"))
	assert.Error(t, err)
}

func TestReviewGuidelines(t *testing.T) {
	text := ReviewGuidelines()
	assert.NotEmpty(t, text)
	// 固定常量，重复读取一致
	assert.Equal(t, text, ReviewGuidelines())
}
