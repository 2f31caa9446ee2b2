package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestThreeStage_RunsAllStages(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreateMessage", ctx, mock.Anything).Return(textResponse("draft output"), nil).Once()
	mc.On("CreateMessage", ctx, mock.Anything).Return(textResponse("critique: missing edge case"), nil).Once()
	mc.On("CreateMessage", ctx, mock.Anything).Return(textResponse("final output"), nil).Once()

	var verifySaw, correctSawDraft, correctSawCritique string
	result, err := ThreeStage(ctx, mc, "claude-sonnet-4-5-20250929", 2048, StagePrompts{
		Draft: "write the analysis",
		Verify: func(draft string) string {
			verifySaw = draft
			return "review this: " + draft
		},
		Correct: func(draft, critique string) string {
			correctSawDraft, correctSawCritique = draft, critique
			return "fix it"
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "final output", result.Text)
	assert.Equal(t, "critique: missing edge case", result.Critique)
	assert.Equal(t, "draft output", verifySaw)
	assert.Equal(t, "draft output", correctSawDraft)
	assert.Equal(t, "critique: missing edge case", correctSawCritique)
	assert.Equal(t, int64(30), result.Usage.InputTokens)
	mc.AssertExpectations(t)
}

func TestThreeStage_DraftOnly(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreateMessage", ctx, mock.Anything).Return(textResponse("just the draft"), nil).Once()

	result, err := ThreeStage(ctx, mc, "claude-sonnet-4-5-20250929", 2048, StagePrompts{
		Draft: "write it",
	})
	require.NoError(t, err)
	assert.Equal(t, "just the draft", result.Text)
	assert.Empty(t, result.Critique)
	mc.AssertExpectations(t)
}

func TestThreeStage_NoDraftPrompt(t *testing.T) {
	mc := new(MockClient)
	_, err := ThreeStage(context.Background(), mc, "claude-sonnet-4-5-20250929", 2048, StagePrompts{})
	require.Error(t, err)
}

func TestThreeStage_DraftFailure(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreateMessage", ctx, mock.Anything).Return(nil, errors.New("overloaded")).Once()

	_, err := ThreeStage(ctx, mc, "claude-sonnet-4-5-20250929", 2048, StagePrompts{
		Draft: "write it",
		Verify: func(string) string { return "review" },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft stage")
	mc.AssertExpectations(t)
}
