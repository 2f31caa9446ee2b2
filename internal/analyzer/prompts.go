package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/svylabs/ilumina/internal/model"
)

const systemAnalyst = `You are a smart-contract protocol analyst. You study
Solidity codebases and produce precise, structured JSON descriptions of
their contracts, participants, and state. Respond with JSON only, no prose.`

const systemEngineer = `You are a TypeScript engineer building agent-based
simulations of smart-contract protocols. You write complete, runnable
TypeScript files using ethers v6. Respond with a single fenced code block
and nothing else.`

const projectSummarySchema = `{
  "name": "string",
  "summary": "string",
  "dev_tool": "hardhat|foundry|...",
  "contracts": [{
    "name": "string",
    "summary": "string",
    "path": "string",
    "functions": [{"name": "string", "summary": "string"}]
  }]
}`

const actorSummarySchema = `{
  "actors": [{
    "name": "string",
    "summary": "string",
    "actions": [{"contract_name": "string", "function_name": "string", "summary": "string"}]
  }]
}`

const deploymentSchema = `{
  "sequence": [{"name": "string", "dependencies": ["string"]}],
  "notes": "string"
}`

const actionDetailSchema = `{
  "contract_name": "string",
  "function_name": "string",
  "parameters": [{"name": "string", "type": "string", "constraints": "string"}],
  "state_touched": ["string"],
  "preconditions": ["string"],
  "expected_state_changes": ["string"]
}`

const snapshotDetailSchema = `{
  "contract_name": "string",
  "variables": [{"name": "string", "type": "string", "per_actor": false}]
}`

func promptAnalyzeProject(src string) string {
	return fmt.Sprintf(`Analyze this smart-contract repository and summarize
it as JSON matching this shape:

%s

List only externally callable, state-mutating functions; skip view and
pure functions.

Repository contents:

%s`, projectSummarySchema, src)
}

func promptAnalyzeActors(summary *model.ProjectSummary) string {
	return fmt.Sprintf(`Given this protocol summary, identify the market
participants (actors) that would interact with it and which contract
functions each would call. Respond as JSON matching:

%s

Every contract_name and function_name must come from the summary.

Protocol summary:

%s`, actorSummarySchema, mustJSON(summary))
}

func promptAnalyzeDeployment(summary *model.ProjectSummary) string {
	return fmt.Sprintf(`Given this protocol summary, determine the order in
which the contracts must be deployed, including constructor dependencies
between them. Respond as JSON matching:

%s

Protocol summary:

%s`, deploymentSchema, mustJSON(summary))
}

func promptImplementDeployment(summary *model.ProjectSummary, instructions *model.DeploymentInstructions) string {
	return fmt.Sprintf(`Write a TypeScript deployment script (deploy.ts)
that deploys the protocol's contracts in this order and wires their
dependencies. Export an async function "deployContracts" returning a map
of contract name to deployed instance.

Deployment instructions:

%s

Protocol summary:

%s`, mustJSON(instructions), mustJSON(summary))
}

func promptDebugDeployment(script, failure string) string {
	return fmt.Sprintf(`This deployment script failed. Fix it and return the
complete corrected file.

Failure output:

%s

Current script:

%s`, failure, script)
}

func promptAnalyzeAction(contract, function string) string {
	return fmt.Sprintf(`Analyze the function %s.%s for simulation: its
parameters and their valid ranges, the state it touches, its
preconditions, and the state changes a successful call must produce.
Respond as JSON matching:

%s`, contract, function, actionDetailSchema)
}

func promptImplementAction(contract, function string, detail json.RawMessage) string {
	return fmt.Sprintf(`Implement a TypeScript Action class for %s.%s. The
class must extend Action and implement initialize (build valid call
parameters from the current snapshot), execute (send the transaction), and
validate (check the expected state changes against before/after
snapshots).

Action analysis:

%s`, contract, function, string(detail))
}

func promptAnalyzeSnapshot(contract string) string {
	return fmt.Sprintf(`Identify the state variables of contract %s that a
simulation must capture in a snapshot before and after each action,
marking which are tracked per actor. Respond as JSON matching:

%s`, contract, snapshotDetailSchema)
}

func promptImplementSnapshots(details map[string]json.RawMessage) string {
	names := make([]string, 0, len(details))
	for name := range details {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "// %s\n%s\n\n", name, string(details[name]))
	}

	return fmt.Sprintf(`Implement a TypeScript snapshot provider that
captures the state of every contract below into a single typed snapshot
object. Export an async function "takeSnapshot" taking the deployed
contract map and the actor addresses.

Snapshot analyses:

%s`, b.String())
}

func promptGenerateScenarios(actors *model.ActorSummary) string {
	return fmt.Sprintf(`Propose 2-4 simulation scenarios for this protocol.
Each scenario names the actors involved and how many instances of each to
run. Respond as a JSON array matching:

[{"name": "string", "description": "string", "steps": 100,
  "actors": [{"name": "string", "count": 1}]}]

Actor summary:

%s`, mustJSON(actors))
}

// verifyJSON builds a verify-stage prompt checking the draft against the
// expected schema and the domain.
func verifyJSON(label, schema string) func(string) string {
	return func(draft string) string {
		return fmt.Sprintf(`Review this %s for correctness and completeness.
Check that it is valid JSON matching:

%s

List every concrete problem you find. If there are none, reply "no issues".

Draft:

%s`, label, schema, draft)
	}
}

func correctJSON(draft, critique string) string {
	return fmt.Sprintf(`Apply this review to the draft and return the
complete corrected JSON. If the review found no issues, return the draft
unchanged.

Review:

%s

Draft:

%s`, critique, draft)
}

func verifyCode(label string) func(string) string {
	return func(draft string) string {
		return fmt.Sprintf(`Review this %s. Check imports, types, async
handling, and that it does what its surrounding comments claim. List every
concrete problem. If there are none, reply "no issues".

Draft:

%s`, label, draft)
	}
}

func correctCode(draft, critique string) string {
	return fmt.Sprintf(`Apply this review and return the complete corrected
file as a single fenced code block. If the review found no issues, return
the draft unchanged.

Review:

%s

Draft:

%s`, critique, draft)
}

// summaryContext renders the project summary as cached system context for
// per-entity calls, so each fanned-out task reuses the same prefix.
func summaryContext(summary *model.ProjectSummary) string {
	return "Protocol summary:\n\n" + mustJSON(summary)
}

// extractCode returns the contents of the first fenced code block, or the
// trimmed text when the model skipped the fence.
func extractCode(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.Index(text, "```")
	if idx < 0 {
		return text
	}
	rest := text[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
