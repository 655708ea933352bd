package gsm8k

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/roost"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEnv(t *testing.T, answer float64) *CalculatorEnv {
	t.Helper()
	env := NewCalculatorEnv("test_0", "What is 18 divided by 3?", answer, nil)
	t.Cleanup(func() { _ = env.Close(context.Background()) })
	obs, tools, err := env.Reset(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "What is 18 divided by 3?", obs[0].Content)
	require.Len(t, tools, 2)
	return env
}

func step(t *testing.T, env *CalculatorEnv, toolName string, args map[string]any) roost.StepResult {
	t.Helper()
	call, err := roost.NewToolCall(toolName, args)
	require.NoError(t, err)
	result, err := env.Step(context.Background(), roost.NewToolRequest(call))
	require.NoError(t, err)
	return result
}

func TestCalculator_Success(t *testing.T) {
	env := newTestEnv(t, 6)
	result := step(t, env, "calculator", map[string]any{"expr": "18 / 3"})
	require.Len(t, result.Observations, 1)
	assert.Equal(t, "6", result.Observations[0].Content)
	assert.Zero(t, result.Reward)
	assert.False(t, result.Done)
}

func TestCalculator_FloatResult(t *testing.T) {
	env := newTestEnv(t, 6)
	result := step(t, env, "calculator", map[string]any{"expr": "7.0 / 2.0"})
	require.Len(t, result.Observations, 1)
	assert.Equal(t, "3.5", result.Observations[0].Content)
}

func TestCalculator_Failure(t *testing.T) {
	env := newTestEnv(t, 6)
	result := step(t, env, "calculator", map[string]any{"expr": "this is not math"})
	require.Len(t, result.Observations, 1)
	assert.Equal(t, "Error using calculator", result.Observations[0].Content)
	assert.Equal(t, -1.0, result.Reward)
	assert.True(t, result.Done)
}

func TestCheckAnswer(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		wantText   string
		wantReward float64
	}{
		{name: "correct", answer: "6", wantText: "true", wantReward: 1},
		{name: "correct within tolerance", answer: "6.0001", wantText: "true", wantReward: 1},
		{name: "incorrect", answer: "7", wantText: "false", wantReward: 0},
		{name: "non-numeric", answer: "six", wantText: "false", wantReward: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 6)
			result := step(t, env, "check_answer", map[string]any{"answer": tt.answer})
			require.Len(t, result.Observations, 1)
			assert.Equal(t, tt.wantText, result.Observations[0].Content)
			assert.Equal(t, tt.wantReward, result.Reward)
			// Checking an answer always ends the episode.
			assert.True(t, result.Done)
		})
	}
}

func TestStep_NoToolCalls(t *testing.T) {
	env := newTestEnv(t, 6)
	result, err := env.Step(context.Background(), roost.NewToolRequest())
	require.NoError(t, err)
	require.Len(t, result.Observations, 1)
	assert.Contains(t, result.Observations[0].Content, "Must call one of the provided tools")
	assert.Equal(t, -1.0, result.Reward)
	assert.True(t, result.Done)
}

func TestStep_InvalidToolCallsOnly(t *testing.T) {
	env := newTestEnv(t, 6)
	bad1 := roost.ParseToolCall("a", "no_such_tool", []byte(`{}`))
	bad2 := roost.ParseToolCall("b", "calculator", []byte(`not json`)) // renamed to INVALID
	result, err := env.Step(context.Background(), roost.NewToolRequest(bad1, bad2))
	require.NoError(t, err)
	require.Len(t, result.Observations, 2)
	assert.Empty(t, result.Observations[0].Content)
	assert.Empty(t, result.Observations[1].Content)
	assert.Equal(t, -2.0, result.Reward)
	assert.True(t, result.Done)
}

func TestStep_MixedValidAndInvalid(t *testing.T) {
	env := newTestEnv(t, 6)
	good, err := roost.NewToolCall("calculator", map[string]any{"expr": "2 + 4"})
	require.NoError(t, err)
	bad := roost.ParseToolCall("b", "no_such_tool", []byte(`{}`))

	result, err := env.Step(context.Background(), roost.NewToolRequest(good, bad))
	require.NoError(t, err)
	// Valid responses first, then empty responses for the invalid calls.
	require.Len(t, result.Observations, 2)
	assert.Equal(t, "6", result.Observations[0].Content)
	assert.Empty(t, result.Observations[1].Content)
	assert.Zero(t, result.Reward)
	assert.False(t, result.Done)
}

func TestStep_MultipleCallsAggregated(t *testing.T) {
	env := newTestEnv(t, 6)
	calc, err := roost.NewToolCall("calculator", map[string]any{"expr": "18 / 3"})
	require.NoError(t, err)
	check, err := roost.NewToolCall("check_answer", map[string]any{"answer": "6"})
	require.NoError(t, err)

	result, err := env.Step(context.Background(), roost.NewToolRequest(calc, check))
	require.NoError(t, err)
	require.Len(t, result.Observations, 2)
	assert.Equal(t, "6", result.Observations[0].Content)
	assert.Equal(t, "true", result.Observations[1].Content)
	// calculator success (0) + correct answer (1), done ORed in by check_answer.
	assert.Equal(t, 1.0, result.Reward)
	assert.True(t, result.Done)
}

func TestDoneOnFailureDisabled(t *testing.T) {
	cfg := DefaultCalculatorConfig()
	cfg.DoneOnFailure = false
	env := NewCalculatorEnv("test_1", "p", 1, &cfg)
	t.Cleanup(func() { _ = env.Close(context.Background()) })
	_, _, err := env.Reset(context.Background())
	require.NoError(t, err)

	result := step(t, env, "calculator", map[string]any{"expr": "nonsense"})
	assert.Equal(t, -1.0, result.Reward)
	assert.False(t, result.Done)
}

func TestExportFrame(t *testing.T) {
	env := newTestEnv(t, 6)
	frame := env.ExportFrame()
	var state struct {
		ProblemID string  `json:"problem_id"`
		Problem   string  `json:"problem"`
		Answer    float64 `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(frame.State, &state))
	assert.Equal(t, "test_0", state.ProblemID)
	assert.Equal(t, "What is 18 divided by 3?", state.Problem)
	assert.Equal(t, 6.0, state.Answer)
}

func TestRegisteredEnvironmentFactory(t *testing.T) {
	env, err := roost.NewEnvironment(EnvName, map[string]any{
		"problem_id": "manual_0",
		"problem":    "What is 2+2?",
		"answer":     4,
	})
	require.NoError(t, err)
	calcEnv, ok := env.(*CalculatorEnv)
	require.True(t, ok)
	assert.Equal(t, "manual_0", calcEnv.ProblemID())

	_, err = roost.NewEnvironment(EnvName, map[string]any{"problem_id": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a problem")
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "6", formatNumber(6))
	assert.Equal(t, "-13", formatNumber(-13))
	assert.Equal(t, "3.5", formatNumber(3.5))
	assert.Equal(t, "0", formatNumber(0))
}
