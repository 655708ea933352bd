// Package dummy provides a minimal roost environment with no network usage,
// useful for tests, examples, and smoke-testing agent loops.
package dummy

import (
	"context"
	"strconv"

	"github.com/skosovsky/roost"
)

// EnvName and DatasetName are the registry names for this package.
const (
	EnvName     = "dummy"
	DatasetName = "dummy"
)

func init() {
	roost.RegisterEnvironment(EnvName, func(params map[string]any) (roost.Environment, error) {
		var cfg struct {
			EndImmediately *bool `json:"end_immediately"`
		}
		if err := roost.DecodeParams(params, &cfg); err != nil {
			return nil, err
		}
		env := New()
		if cfg.EndImmediately != nil {
			env.EndImmediately = *cfg.EndImmediately
		}
		return env, nil
	})
	roost.RegisterTaskDataset(DatasetName, func(_ context.Context, params map[string]any) (roost.TaskDataset, error) {
		if err := roost.DecodeParams(params, &struct{}{}); err != nil {
			return nil, err
		}
		return TaskDataset{}, nil
	})
}

type state struct {
	Messages []roost.Message
	Reward   float64
	Done     bool
}

// Env is a simple environment with basic functionality: a print_story tool that
// ends the episode with reward 1, and two casting tools.
type Env struct {
	// EndImmediately makes print_story end the episode (default true).
	EndImmediately bool

	registry *roost.Registry
	tools    []roost.Tool
	state    state
}

// New returns a dummy environment that ends immediately after print_story.
func New() *Env {
	return &Env{EndImmediately: true}
}

type printStoryArgs struct {
	Story string `json:"story" description:"Story to print."`
}

type castArgs struct {
	X string `json:"x" description:"Value to cast."`
}

type castIntArgs struct {
	X float64 `json:"x" description:"Value to cast."`
}

// Reset builds the toolset and returns the task instruction.
func (e *Env) Reset(_ context.Context) ([]roost.Message, []roost.Tool, error) {
	printStory, err := roost.NewTool("print_story", "Print a story.",
		func(_ context.Context, args printStoryArgs) (string, error) {
			e.state.Reward = 1
			e.state.Done = e.EndImmediately
			return args.Story, nil
		})
	if err != nil {
		return nil, nil, err
	}
	castFloat, err := roost.NewTool("cast_float", "Cast the input argument x to a float.",
		func(_ context.Context, args castArgs) (float64, error) {
			return strconv.ParseFloat(args.X, 64)
		})
	if err != nil {
		return nil, nil, err
	}
	castInt, err := roost.NewTool("cast_int", "Cast the input argument x to an integer.",
		func(_ context.Context, args castIntArgs) (int, error) {
			return int(args.X), nil
		})
	if err != nil {
		return nil, nil, err
	}
	e.tools = []roost.Tool{printStory, castFloat, castInt}
	e.registry = roost.NewRegistryWith(e.tools)
	e.state = state{Messages: []roost.Message{roost.NewMessage("Write a 5 word story via print_story")}}
	return e.state.Messages, e.tools, nil
}

// Step executes the action's tool calls and appends the responses to the transcript.
func (e *Env) Step(ctx context.Context, action roost.ToolRequestMessage) (roost.StepResult, error) {
	responses, err := roost.ExecToolCalls(ctx, e.registry, action, roost.ExecOptions{})
	if err != nil {
		return roost.StepResult{}, err
	}
	msgs := make([]roost.Message, len(responses))
	for i, r := range responses {
		msgs[i] = r.Message()
	}
	e.state.Messages = append(e.state.Messages, msgs...)
	return roost.StepResult{
		Observations: msgs,
		Reward:       e.state.Reward,
		Done:         e.state.Done,
	}, nil
}

// ExportFrame snapshots the transcript and episode status.
func (e *Env) ExportFrame() roost.Frame {
	contents := make([]string, len(e.state.Messages))
	for i, m := range e.state.Messages {
		contents[i] = m.Content
	}
	toolNames := make([]string, len(e.tools))
	for i, t := range e.tools {
		toolNames[i] = t.Name()
	}
	return roost.MustFrame(
		map[string]any{"messages": contents},
		map[string]any{"tool_names": toolNames, "done": e.state.Done, "reward": e.state.Reward},
	)
}

// Close shuts down the tool registry.
func (e *Env) Close(ctx context.Context) error {
	if e.registry == nil {
		return nil
	}
	return e.registry.Shutdown(ctx)
}

// TaskDataset is an infinite dataset of dummy environments.
type TaskDataset struct{}

// Len reports the dataset as non-indexable.
func (TaskDataset) Len() (int, bool) { return 0, false }

// GetNewEnvByIdx is unsupported for an infinite dataset.
func (TaskDataset) GetNewEnvByIdx(context.Context, int) (roost.Environment, error) {
	return nil, roost.ErrNotIndexable
}

// GetNewEnv returns a fresh dummy environment.
func (TaskDataset) GetNewEnv(context.Context) (roost.Environment, error) {
	return New(), nil
}

var (
	_ roost.Environment = (*Env)(nil)
	_ roost.TaskDataset = TaskDataset{}
)
