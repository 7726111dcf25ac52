package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mare-review-api/internal/application/review"
	"mare-review-api/internal/domain/entity"
	"mare-review-api/internal/interfaces/http/dto"
)

// scriptedModel 按脚本逐次应答的假模型
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
}

func (m *scriptedModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	out := schema.AssistantMessage(next, nil)
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 5, CompletionTokens: 7}}
	return out, nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

type stubFactory struct {
	model model.BaseChatModel
}

func (f *stubFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	return f.model, nil
}

func newTestEngine(t *testing.T, m model.BaseChatModel) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	profiles := []entity.PersonaProfile{
		{Name: "Applejack", Description: "Honest and hardworking.", Quotes: []string{"Yeehaw!"}},
		{Name: "Rarity", Description: "Dramatic and generous.", Quotes: []string{"Darling!"}},
	}
	registry, err := review.NewRegistry(profiles, &stubFactory{model: m}, review.Options{MaxAttempts: 2})
	require.NoError(t, err)

	chat := NewChatHandler(registry, nil)
	models := NewModelsHandler(registry, "mare-review-api")

	r := gin.New()
	r.POST("/v1/chat/completions", chat.Completion)
	r.GET("/v1/models", models.List)
	return r
}

func postCompletion(t *testing.T, r *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func happyPathModel() *scriptedModel {
	return &scriptedModel{responses: []string{
		"```md\nDraft review.\n```",
		"```md\nRefined review, sugarcube.\n```",
		"```html\n<p>Refined review, sugarcube.</p>\n```",
	}}
}

func TestCompletion_HappyPath(t *testing.T) {
	r := newTestEngine(t, happyPathModel())

	w := postCompletion(t, r, dto.ChatCompletionRequest{
		Model: "Applejack",
		Messages: []dto.ChatMessage{
			{Role: "user", Content: "Once upon a time in Ponyville."},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "Applejack", resp.Model)
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "<p>Refined review, sugarcube.</p>", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)

	// 三次调用累计的用量
	assert.Equal(t, 15, resp.Usage.PromptTokens)
	assert.Equal(t, 21, resp.Usage.CompletionTokens)
	assert.Equal(t, 36, resp.Usage.TotalTokens)
}

func TestCompletion_ModelNotFound(t *testing.T) {
	r := newTestEngine(t, happyPathModel())

	w := postCompletion(t, r, dto.ChatCompletionRequest{
		Model:    "NoSuchPony",
		Messages: []dto.ChatMessage{{Role: "user", Content: "A story."}},
	})

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "model_not_found", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "NoSuchPony")
}

func TestCompletion_EmptyStory(t *testing.T) {
	r := newTestEngine(t, happyPathModel())

	w := postCompletion(t, r, dto.ChatCompletionRequest{
		Model:    "Applejack",
		Messages: []dto.ChatMessage{{Role: "user", Content: "   \n"}},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorTypeInvalidRequest, resp.Error.Type)
}

func TestCompletion_InvalidBody(t *testing.T) {
	r := newTestEngine(t, happyPathModel())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompletion_MessagesJoinedRoleAgnostic(t *testing.T) {
	// 故事无论放在 system 还是 user 消息都一样处理
	r := newTestEngine(t, happyPathModel())

	w := postCompletion(t, r, dto.ChatCompletionRequest{
		Model: "Rarity",
		Messages: []dto.ChatMessage{
			{Role: "system", Content: "Chapter one."},
			{Role: "user", Content: "Chapter two."},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCompletion_ExtractionFailureDoesNotLeakOutput(t *testing.T) {
	// 阶段二始终产出错误类型的块，耗尽预算（MaxAttempts=2）
	m := &scriptedModel{responses: []string{
		"```md\nSECRET DRAFT TEXT\n```",
		"```html\nstill wrong\n```",
		"```html\nstill wrong\n```",
	}}
	r := newTestEngine(t, m)

	w := postCompletion(t, r, dto.ChatCompletionRequest{
		Model:    "Applejack",
		Messages: []dto.ChatMessage{{Role: "user", Content: "A story."}},
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "SECRET DRAFT TEXT")
	assert.NotContains(t, body, "still wrong")

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "review_generation_failed", resp.Error.Code)
	assert.Equal(t, dto.ErrorTypeServer, resp.Error.Type)
}

func TestCompletion_Stream(t *testing.T) {
	r := newTestEngine(t, happyPathModel())

	w := postCompletion(t, r, dto.ChatCompletionRequest{
		Model:    "Applejack",
		Messages: []dto.ChatMessage{{Role: "user", Content: "A story."}},
		Stream:   true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))

	// 第一个数据块携带完整评论
	lines := strings.Split(body, "\n")
	require.True(t, strings.HasPrefix(lines[0], "data: "))

	var chunk dto.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &chunk))
	assert.Equal(t, "chat.completion.chunk", chunk.Object)
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "assistant", chunk.Choices[0].Delta.Role)
	assert.Equal(t, "<p>Refined review, sugarcube.</p>", chunk.Choices[0].Delta.Content)
	assert.Nil(t, chunk.Choices[0].FinishReason)

	// 终止块以 finish_reason=stop 收尾
	assert.Contains(t, body, `"finish_reason":"stop"`)
}

func TestModels_List(t *testing.T) {
	r := newTestEngine(t, happyPathModel())

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ModelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Object)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Applejack", resp.Data[0].ID)
	assert.Equal(t, "model", resp.Data[0].Object)
	assert.Equal(t, "Rarity", resp.Data[1].ID)
}
