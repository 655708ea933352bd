package dummy

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

func TestEnv_Episode(t *testing.T) {
	ctx := context.Background()
	env := New()
	defer env.Close(ctx) //nolint:errcheck

	obs, tools, err := env.Reset(ctx)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "Write a 5 word story via print_story", obs[0].Content)
	require.Len(t, tools, 3)
	assert.Equal(t, "print_story", tools[0].Name())

	call, err := roost.NewToolCall("print_story", map[string]any{"story": "Once upon a time, fin."})
	require.NoError(t, err)
	result, err := env.Step(ctx, roost.NewToolRequest(call))
	require.NoError(t, err)
	require.Len(t, result.Observations, 1)
	assert.Equal(t, "Once upon a time, fin.", result.Observations[0].Content)
	assert.Equal(t, 1.0, result.Reward)
	assert.True(t, result.Done)
	assert.False(t, result.Truncated)
}

func TestEnv_NoEndImmediately(t *testing.T) {
	ctx := context.Background()
	env := New()
	env.EndImmediately = false
	defer env.Close(ctx) //nolint:errcheck

	_, _, err := env.Reset(ctx)
	require.NoError(t, err)

	call, err := roost.NewToolCall("print_story", map[string]any{"story": "story"})
	require.NoError(t, err)
	result, err := env.Step(ctx, roost.NewToolRequest(call))
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Reward)
	assert.False(t, result.Done)
}

func TestEnv_CastTools(t *testing.T) {
	ctx := context.Background()
	env := New()
	defer env.Close(ctx) //nolint:errcheck

	_, _, err := env.Reset(ctx)
	require.NoError(t, err)

	floatCall, err := roost.NewToolCall("cast_float", map[string]any{"x": "3.5"})
	require.NoError(t, err)
	intCall, err := roost.NewToolCall("cast_int", map[string]any{"x": 3.5})
	require.NoError(t, err)

	result, err := env.Step(ctx, roost.NewToolRequest(floatCall, intCall))
	require.NoError(t, err)
	require.Len(t, result.Observations, 2)
	assert.Equal(t, "3.5", result.Observations[0].Content)
	assert.Equal(t, "3", result.Observations[1].Content)
	assert.Zero(t, result.Reward)
	assert.False(t, result.Done)
}

func TestEnv_UnknownToolErrors(t *testing.T) {
	ctx := context.Background()
	env := New()
	defer env.Close(ctx) //nolint:errcheck

	_, _, err := env.Reset(ctx)
	require.NoError(t, err)

	call, err := roost.NewToolCall("ghost", nil)
	require.NoError(t, err)
	_, err = env.Step(ctx, roost.NewToolRequest(call))
	require.Error(t, err)
	assert.ErrorIs(t, err, roost.ErrToolNotFound)
}

func TestEnv_ExportFrame(t *testing.T) {
	ctx := context.Background()
	env := New()
	defer env.Close(ctx) //nolint:errcheck

	_, _, err := env.Reset(ctx)
	require.NoError(t, err)

	frame := env.ExportFrame()
	var state struct {
		Messages []string `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(frame.State, &state))
	assert.Equal(t, []string{"Write a 5 word story via print_story"}, state.Messages)

	var info struct {
		ToolNames []string `json:"tool_names"`
		Done      bool     `json:"done"`
		Reward    float64  `json:"reward"`
	}
	require.NoError(t, json.Unmarshal(frame.Info, &info))
	assert.Equal(t, []string{"print_story", "cast_float", "cast_int"}, info.ToolNames)
	assert.False(t, info.Done)
	assert.Zero(t, info.Reward)
}

func TestRegisteredFactories(t *testing.T) {
	env, err := roost.NewEnvironment(EnvName, map[string]any{"end_immediately": false})
	require.NoError(t, err)
	dummyEnv, ok := env.(*Env)
	require.True(t, ok)
	assert.False(t, dummyEnv.EndImmediately)

	ds, err := roost.NewNamedTaskDataset(context.Background(), DatasetName, nil)
	require.NoError(t, err)
	_, finite := ds.Len()
	assert.False(t, finite)

	fresh, err := ds.GetNewEnv(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &Env{}, fresh)

	_, err = ds.GetNewEnvByIdx(context.Background(), 0)
	assert.ErrorIs(t, err, roost.ErrNotIndexable)
}

func TestTaskDataset_IterBatches(t *testing.T) {
	var batches int
	for batch, err := range roost.IterBatches(context.Background(), TaskDataset{}, 2, false) {
		require.NoError(t, err)
		assert.Len(t, batch, 2)
		batches++
		if batches == 2 {
			break
		}
	}
	assert.Equal(t, 2, batches)
}
