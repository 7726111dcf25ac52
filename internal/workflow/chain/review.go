package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	llmctx "mare-review-api/internal/domain/service"
	wfmodel "mare-review-api/internal/workflow/model"
	wfnode "mare-review-api/internal/workflow/node"
	workflowport "mare-review-api/internal/workflow/port"
	workflowprompt "mare-review-api/internal/workflow/prompt"
)

// ReviewChain 三段式评论生成流水线：
//
//	draft（初稿）→ refine（角色化润色）→ format（HTML 排版）
//
// 阶段严格串行，后一阶段以前一阶段的输出为输入；任一阶段块提取
// 失败即中止整条流水线，不返回部分结果。阶段内部的重试由
// QueryBlock 负责，流水线本身不回环。
type ReviewChain struct {
	factory  workflowport.ChatModelFactory
	registry *workflowprompt.Registry

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.ReviewInput, *wfmodel.ReviewOutput]
	chainErr  error
}

func NewReviewChain(factory workflowport.ChatModelFactory, registry *workflowprompt.Registry) *ReviewChain {
	if registry == nil {
		registry = workflowprompt.NewRegistry()
	}
	return &ReviewChain{factory: factory, registry: registry}
}

func (c *ReviewChain) Invoke(ctx context.Context, in *wfmodel.ReviewInput) (*wfmodel.ReviewOutput, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(in.Story) == "" {
		return nil, fmt.Errorf("story text is empty")
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}

	// 编排框架会在阶段错误外再包一层描述信息；
	// 这里把阶段原始错误捕获下来，保证调用方能按类型判定。
	capture := &stageErrCapture{}
	ctx = context.WithValue(ctx, stageErrCaptureKey{}, capture)

	out, err := chain.Invoke(ctx, in)
	if err != nil {
		if capture.err != nil {
			return nil, capture.err
		}
		return nil, err
	}
	return out, nil
}

type stageErrCaptureKey struct{}

type stageErrCapture struct {
	err error
}

func captureStageErr(ctx context.Context, err error) error {
	if c, ok := ctx.Value(stageErrCaptureKey{}).(*stageErrCapture); ok && c.err == nil {
		c.err = err
	}
	return err
}

type reviewChainState struct {
	In        *wfmodel.ReviewInput
	ChatModel model.BaseChatModel

	Draft     wfmodel.TypedBlock
	Refined   wfmodel.TypedBlock
	Formatted wfmodel.TypedBlock

	Stages   int
	Attempts int
	Retried  bool

	PromptTokens     int
	CompletionTokens int
}

func (st *reviewChainState) record(stats BlockStats) {
	st.Stages++
	st.Attempts += stats.Attempts
	if stats.Attempts > 1 {
		st.Retried = true
	}
	st.PromptTokens += stats.PromptTokens
	st.CompletionTokens += stats.CompletionTokens
}

func (c *ReviewChain) getChain() (compose.Runnable[*wfmodel.ReviewInput, *wfmodel.ReviewOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *ReviewChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.ReviewInput, *wfmodel.ReviewOutput], error) {
	chain := compose.NewChain[*wfmodel.ReviewInput, *wfmodel.ReviewOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.ReviewInput) (*reviewChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			if c.factory == nil {
				return nil, fmt.Errorf("llm factory not configured")
			}
			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(in.Provider))
			if err != nil {
				return nil, captureStageErr(ctx, err)
			}
			return &reviewChainState{In: in, ChatModel: chatModel}, nil
		}),
		compose.WithNodeName("review.init"),
	)

	// 阶段一：初稿。输入：角色档案、故事、评论准则。
	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *reviewChainState) (*reviewChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			ctx = llmctx.WithWorkflowProvider(ctx, "review_draft", strings.TrimSpace(st.In.Provider))

			block, stats, err := QueryBlock(ctx, st.ChatModel, c.registry, BlockQuery{
				PromptID:    workflowprompt.PromptReviewDraftV1,
				ContentType: wfmodel.ContentTypeMarkdown,
				Sections: []wfnode.Section{
					{Name: "REVIEWER", Content: wfnode.BuildReviewerBlock(st.In.Reviewer)},
					{Name: "STORY", Content: st.In.Story},
					{Name: "REVIEW_GUIDELINES", Content: workflowprompt.ReviewGuidelines()},
				},
				MaxAttempts: st.In.MaxAttempts,
				Options:     buildReviewModelOptions(st.In),
			})
			st.record(stats)
			if err != nil {
				return nil, captureStageErr(ctx, err)
			}
			st.Draft = block
			return st, nil
		}),
		compose.WithNodeName("review.draft"),
	)

	// 阶段二：角色化润色。输入：角色档案、故事、初稿。
	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *reviewChainState) (*reviewChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			ctx = llmctx.WithWorkflowProvider(ctx, "review_refine", strings.TrimSpace(st.In.Provider))

			block, stats, err := QueryBlock(ctx, st.ChatModel, c.registry, BlockQuery{
				PromptID:    workflowprompt.PromptReviewRefineV1,
				ContentType: wfmodel.ContentTypeMarkdown,
				Sections: []wfnode.Section{
					{Name: "REVIEWER", Content: wfnode.BuildReviewerBlock(st.In.Reviewer)},
					{Name: "STORY", Content: st.In.Story},
					{Name: "REVIEW", Content: st.Draft.Payload},
				},
				MaxAttempts: st.In.MaxAttempts,
				Options:     buildReviewModelOptions(st.In),
			})
			st.record(stats)
			if err != nil {
				return nil, captureStageErr(ctx, err)
			}
			st.Refined = block
			return st, nil
		}),
		compose.WithNodeName("review.refine"),
	)

	// 阶段三：HTML 排版。只看润色稿，不再接触故事原文。
	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *reviewChainState) (*reviewChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			ctx = llmctx.WithWorkflowProvider(ctx, "review_format", strings.TrimSpace(st.In.Provider))

			block, stats, err := QueryBlock(ctx, st.ChatModel, c.registry, BlockQuery{
				PromptID:    workflowprompt.PromptReviewFormatV1,
				ContentType: wfmodel.ContentTypeHTML,
				Sections: []wfnode.Section{
					{Name: "REVIEW", Content: st.Refined.Payload},
				},
				MaxAttempts: st.In.MaxAttempts,
				Options:     buildReviewModelOptions(st.In),
			})
			st.record(stats)
			if err != nil {
				return nil, captureStageErr(ctx, err)
			}
			st.Formatted = block
			return st, nil
		}),
		compose.WithNodeName("review.format"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *reviewChainState) (*wfmodel.ReviewOutput, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return &wfmodel.ReviewOutput{
				Review:   st.Formatted,
				Stages:   st.Stages,
				Attempts: st.Attempts,
				Retried:  st.Retried,
				Meta: wfmodel.LLMUsageMeta{
					Provider:         strings.TrimSpace(st.In.Provider),
					Model:            strings.TrimSpace(st.In.Model),
					PromptTokens:     st.PromptTokens,
					CompletionTokens: st.CompletionTokens,
					GeneratedAt:      time.Now().UTC(),
				},
			}, nil
		}),
		compose.WithNodeName("review.finalize"),
	)

	return chain.Compile(ctx)
}

func buildReviewModelOptions(in *wfmodel.ReviewInput) []model.Option {
	opts := make([]model.Option, 0, 3)
	if in == nil {
		return opts
	}
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}
	return opts
}
