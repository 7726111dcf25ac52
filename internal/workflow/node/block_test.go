package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBlock_Found(t *testing.T) {
	raw := "Here is the review:\n```md\n# Great story\n\nLoved it.\n```\nHope that helps!"

	payload, result := ExtractBlock("md", raw)

	assert.Equal(t, BlockFound, result)
	assert.Equal(t, "# Great story\n\nLoved it.", payload)
}

func TestExtractBlock_MarkdownAlias(t *testing.T) {
	// 模型常把 md 写成 markdown，两者视为同义
	raw := "```markdown\nsome text\n```"

	payload, result := ExtractBlock("md", raw)

	assert.Equal(t, BlockFound, result)
	assert.Equal(t, "some text", payload)
}

func TestExtractBlock_Lenient_NoFences(t *testing.T) {
	// 输出完全没有围栏语法时，整段裁剪后的文本即 payload
	raw := "  \n# Great story\n\nLoved it.\n  "

	payload, result := ExtractBlock("md", raw)

	assert.Equal(t, BlockNotFound, result)
	assert.Equal(t, "# Great story\n\nLoved it.", payload)
}

func TestExtractBlock_WrongType(t *testing.T) {
	raw := "```html\n<p>hi</p>\n```"

	payload, result := ExtractBlock("md", raw)

	assert.Equal(t, BlockWrongType, result)
	assert.Empty(t, payload)
}

func TestExtractBlock_Ambiguous_TakesFirst(t *testing.T) {
	raw := "```md\nfirst\n```\n\n```md\nsecond\n```"

	payload, result := ExtractBlock("md", raw)

	assert.Equal(t, BlockAmbiguous, result)
	assert.Equal(t, "first", payload)
}

func TestExtractBlock_Empty(t *testing.T) {
	payload, result := ExtractBlock("md", "```md\n\n```")
	assert.Equal(t, BlockEmpty, result)
	assert.Empty(t, payload)

	payload, result = ExtractBlock("md", "   \n  ")
	assert.Equal(t, BlockEmpty, result)
	assert.Empty(t, payload)
}

func TestExtractBlock_BackToBackFences(t *testing.T) {
	// ```html 行同时闭合上一个块并打开下一个
	raw := "```md\ndraft\n```html\n<p>x</p>\n```"

	payload, result := ExtractBlock("md", raw)
	assert.Equal(t, BlockFound, result)
	assert.Equal(t, "draft", payload)

	payload, result = ExtractBlock("html", raw)
	assert.Equal(t, BlockFound, result)
	assert.Equal(t, "<p>x</p>", payload)
}

func TestExtractBlock_UnclosedFenceIgnored(t *testing.T) {
	raw := "```md\nnever closed"

	payload, result := ExtractBlock("md", raw)

	// 有围栏语法但没有完整块，不走宽松分支
	assert.Equal(t, BlockWrongType, result)
	assert.Empty(t, payload)
}

func TestExtractBlock_FencedPayloadInsideStory(t *testing.T) {
	// 块内再次出现围栏行按闭栏处理，取到第一段完整内容
	raw := "```md\nouter\n```\ntrailing prose"

	payload, result := ExtractBlock("md", raw)

	assert.Equal(t, BlockFound, result)
	assert.Equal(t, "outer", payload)
}

func TestBlockResult_String(t *testing.T) {
	assert.Equal(t, "found", BlockFound.String())
	assert.Equal(t, "ambiguous", BlockAmbiguous.String())
	assert.Equal(t, "wrong_type", BlockWrongType.String())
	assert.Equal(t, "not_found", BlockNotFound.String())
	assert.Equal(t, "empty", BlockEmpty.String())
}
