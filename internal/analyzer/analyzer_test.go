package analyzer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svylabs/ilumina/internal/model"
	"github.com/svylabs/ilumina/pkg/anthropic"
)

// scriptedClient returns canned responses in order, recording each request.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	requests  []anthropic.MessageRequest
}

func (c *scriptedClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return &anthropic.MessageResponse{}, nil
	}
	text := c.responses[0]
	c.responses = c.responses[1:]
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

const projectSummaryJSON = `{
  "name": "vault",
  "summary": "A token vault.",
  "dev_tool": "hardhat",
  "contracts": [{
    "name": "Vault",
    "summary": "Holds deposits.",
    "path": "contracts/Vault.sol",
    "functions": [{"name": "deposit"}, {"name": "withdraw"}]
  }]
}`

func TestAnalyzeProject(t *testing.T) {
	client := &scriptedClient{responses: []string{
		projectSummaryJSON,
		"no issues",
		projectSummaryJSON,
	}}
	a := New(client, Config{Model: "claude-test", MaxTokens: 1024})

	summary, err := a.AnalyzeProject(context.Background(), "contract Vault {}")
	require.NoError(t, err)

	assert.Equal(t, "vault", summary.Name)
	assert.Equal(t, "hardhat", summary.DevTool)
	require.Len(t, summary.Contracts, 1)
	assert.Equal(t, "Vault", summary.Contracts[0].Name)
	assert.Len(t, summary.Contracts[0].Functions, 2)

	// Draft, verify, correct.
	require.Len(t, client.requests, 3)
	assert.Contains(t, client.requests[0].Messages[len(client.requests[0].Messages)-1].Content, "contract Vault {}")
}

func TestAnalyzeProject_NoContractsIsAnError(t *testing.T) {
	empty := `{"name": "x", "summary": "y", "contracts": []}`
	client := &scriptedClient{responses: []string{empty, "no issues", empty}}
	a := New(client, Config{Model: "claude-test"})

	_, err := a.AnalyzeProject(context.Background(), "src")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contracts")
}

func TestAnalyzeActors(t *testing.T) {
	actorsJSON := `{"actors": [{
	  "name": "Depositor",
	  "summary": "Deposits tokens.",
	  "actions": [{"contract_name": "Vault", "function_name": "deposit"}]
	}]}`
	client := &scriptedClient{responses: []string{actorsJSON, "no issues", actorsJSON}}
	a := New(client, Config{Model: "claude-test"})

	actors, err := a.AnalyzeActors(context.Background(), &model.ProjectSummary{Name: "vault"})
	require.NoError(t, err)
	require.Len(t, actors.Actors, 1)
	assert.Equal(t, "Depositor", actors.Actors[0].Name)
}

func TestImplementDeploymentScript_StripsFence(t *testing.T) {
	script := "```typescript\nexport async function deployContracts() {}\n```"
	client := &scriptedClient{responses: []string{script, "no issues", script}}
	a := New(client, Config{Model: "claude-test"})

	code, err := a.ImplementDeploymentScript(context.Background(),
		&model.ProjectSummary{Name: "vault"},
		&model.DeploymentInstructions{Sequence: []model.DeployedContract{{Name: "Vault"}}})
	require.NoError(t, err)
	assert.Equal(t, "export async function deployContracts() {}", code)
}

func TestGenerateScenarios_SingleStage(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`[{"name": "steady", "steps": 50, "actors": [{"name": "Depositor", "count": 2}]}]`,
	}}
	a := New(client, Config{Model: "claude-test", ReviewModel: "claude-small"})

	scenarios, err := a.GenerateScenarios(context.Background(), &model.ActorSummary{
		Actors: []model.Actor{{Name: "Depositor"}},
	})
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "steady", scenarios[0].Name)
	assert.Equal(t, 50, scenarios[0].Steps)

	// Draft only; scenario naming skips verify and correct.
	require.Len(t, client.requests, 1)
	assert.Equal(t, "claude-small", client.requests[0].Model)
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fenced with language", "```typescript\nconst a = 1;\n```", "const a = 1;"},
		{"fenced bare", "```\nconst a = 1;\n```", "const a = 1;"},
		{"prose around fence", "Here you go:\n```ts\nlet x;\n```\nDone.", "let x;"},
		{"no fence", "const a = 1;", "const a = 1;"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractCode(tc.in))
		})
	}
}
