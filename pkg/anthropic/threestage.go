package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StagePrompts drives a three-stage call: a draft prompt, a verification
// prompt over the draft, and a correction prompt over the draft plus the
// critique. Verify and Correct receive the intermediate outputs and build
// the next user message.
type StagePrompts struct {
	System  []SystemBlock
	Draft   string
	Verify  func(draft string) string
	Correct func(draft, critique string) string
}

// ThreeStageResult carries the final text plus combined usage across stages.
type ThreeStageResult struct {
	Text     string
	Critique string
	Usage    TokenUsage
}

// ThreeStage runs draft, verify, and correct as three sequential messages
// and returns the corrected output. Every stage shares the same system
// blocks, so a cached system prompt is paid for once.
func ThreeStage(ctx context.Context, client Client, model string, maxTokens int64, p StagePrompts) (*ThreeStageResult, error) {
	if p.Draft == "" {
		return nil, eris.New("anthropic: three-stage call needs a draft prompt")
	}

	result := &ThreeStageResult{}

	draft, err := createStage(ctx, client, model, maxTokens, p.System, p.Draft, &result.Usage)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: draft stage")
	}
	result.Text = draft

	if p.Verify == nil {
		return result, nil
	}

	critique, err := createStage(ctx, client, model, maxTokens, p.System, p.Verify(draft), &result.Usage)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: verify stage")
	}
	result.Critique = critique

	if p.Correct == nil {
		return result, nil
	}

	corrected, err := createStage(ctx, client, model, maxTokens, p.System, p.Correct(draft, critique), &result.Usage)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: correct stage")
	}
	result.Text = corrected

	zap.L().Debug("three-stage call complete",
		zap.String("model", model),
		zap.Int64("total_input_tokens", result.Usage.InputTokens),
		zap.Int64("total_output_tokens", result.Usage.OutputTokens),
	)
	return result, nil
}

func createStage(ctx context.Context, client Client, model string, maxTokens int64, system []SystemBlock, prompt string, usage *TokenUsage) (string, error) {
	resp, err := client.CreateMessage(ctx, MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	usage.Add(resp.Usage)
	return resp.Text(), nil
}
