// Package gsm8k provides a calculator environment over grade-school math word
// problems and a task dataset backed by the public GSM8K release.
package gsm8k

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/traefik/yaegi/interp"

	"github.com/skosovsky/roost"
)

// EnvName and DatasetName are the registry names for this package.
const (
	EnvName     = "calculator"
	DatasetName = "gsm8k"
)

func init() {
	roost.RegisterEnvironment(EnvName, func(params map[string]any) (roost.Environment, error) {
		var cfg struct {
			ProblemID string            `json:"problem_id"`
			Problem   string            `json:"problem"`
			Answer    float64           `json:"answer"`
			Config    *CalculatorConfig `json:"config"`
		}
		if err := roost.DecodeParams(params, &cfg); err != nil {
			return nil, err
		}
		if cfg.Problem == "" {
			return nil, fmt.Errorf("calculator environment requires a problem")
		}
		return NewCalculatorEnv(cfg.ProblemID, cfg.Problem, cfg.Answer, cfg.Config), nil
	})
	roost.RegisterTaskDataset(DatasetName, func(ctx context.Context, params map[string]any) (roost.TaskDataset, error) {
		var cfg struct {
			Split   string            `json:"split"`
			Config  *CalculatorConfig `json:"config"`
			Source  string            `json:"source"`
			BaseURL string            `json:"base_url"`
		}
		if err := roost.DecodeParams(params, &cfg); err != nil {
			return nil, err
		}
		var opts []DatasetOption
		if cfg.Config != nil {
			opts = append(opts, WithConfig(*cfg.Config))
		}
		if cfg.Source != "" {
			opts = append(opts, WithSource(cfg.Source))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		return LoadDataset(ctx, Split(cfg.Split), opts...)
	})
}

// CalculatorConfig sets the reward shape of a CalculatorEnv.
type CalculatorConfig struct {
	CorrectReward     float64 `json:"correct_reward"`
	IncorrectReward   float64 `json:"incorrect_reward"`
	ToolFailureReward float64 `json:"tool_failure_reward"`
	ToolSuccessReward float64 `json:"tool_success_reward"`
	RelTol            float64 `json:"rel_tol"`
	// DoneOnFailure ends the episode when a tool call fails or is invalid.
	DoneOnFailure bool `json:"done_on_failure"`
}

// DefaultCalculatorConfig returns the standard reward shape: 1 for a correct
// answer, 0 for incorrect, -1 for tool failure, episode ends on failure.
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		CorrectReward:     1.0,
		IncorrectReward:   0.0,
		ToolFailureReward: -1.0,
		ToolSuccessReward: 0.0,
		RelTol:            1e-4,
		DoneOnFailure:     true,
	}
}

// toolOutcome is the JSON contract between calculator tools and Step: every tool
// reports its textual response, the reward earned, and whether the episode ends.
type toolOutcome struct {
	Response string  `json:"response"`
	Reward   float64 `json:"reward"`
	Done     bool    `json:"done"`
}

// CalculatorEnv is a single math word problem: the agent may evaluate expressions
// with the calculator tool and must submit its result via check_answer.
type CalculatorEnv struct {
	// The problem is not part of exported state because it never changes: it is
	// fixed at construction and unaffected by Step or Reset.
	problemID string
	problem   string
	answer    float64
	config    CalculatorConfig

	registry *roost.Registry
	tools    []roost.Tool
}

// NewCalculatorEnv builds an environment for one problem. A nil config uses
// DefaultCalculatorConfig.
func NewCalculatorEnv(problemID, problem string, answer float64, config *CalculatorConfig) *CalculatorEnv {
	cfg := DefaultCalculatorConfig()
	if config != nil {
		cfg = *config
	}
	return &CalculatorEnv{
		problemID: problemID,
		problem:   problem,
		answer:    answer,
		config:    cfg,
	}
}

type calculatorArgs struct {
	Expr string `json:"expr" description:"A valid arithmetic expression (Go syntax)."`
}

type checkAnswerArgs struct {
	Answer string `json:"answer" description:"Proposed answer."`
}

// Reset returns the problem statement and the calculator/check_answer tools.
func (e *CalculatorEnv) Reset(_ context.Context) ([]roost.Message, []roost.Tool, error) {
	calc, err := roost.NewTool("calculator", "Calculate a mathematical expression.",
		func(_ context.Context, args calculatorArgs) (toolOutcome, error) {
			return e.calculate(args.Expr), nil
		})
	if err != nil {
		return nil, nil, err
	}
	check, err := roost.NewTool("check_answer", "Check if the proposed answer is correct.",
		func(_ context.Context, args checkAnswerArgs) (toolOutcome, error) {
			return e.checkAnswer(args.Answer), nil
		})
	if err != nil {
		return nil, nil, err
	}
	e.tools = []roost.Tool{calc, check}
	e.registry = roost.NewRegistryWith(e.tools)
	return []roost.Message{roost.NewMessage(e.problem)}, e.tools, nil
}

// Step executes the action's tool calls and aggregates their outcomes: rewards
// are summed, done flags ORed. A step with no tool calls, or with only invalid
// ones, earns the failure reward and ends the episode when DoneOnFailure is set.
func (e *CalculatorEnv) Step(ctx context.Context, action roost.ToolRequestMessage) (roost.StepResult, error) {
	if len(action.ToolCalls) == 0 {
		return roost.StepResult{
			Observations: []roost.Message{roost.NewMessage(
				"Must call one of the provided tools (calculator or check_answer).",
			)},
			Reward: e.config.ToolFailureReward,
			Done:   e.config.DoneOnFailure,
		}, nil
	}

	valid, invalid := roost.FilterInvalidToolCalls(e.registry, action)
	invalidResponses := make([]roost.Message, len(invalid.ToolCalls))
	for i, call := range invalid.ToolCalls {
		invalidResponses[i] = roost.NewToolResponse(call, "").Message()
	}

	if len(valid.ToolCalls) == 0 {
		return roost.StepResult{
			Observations: invalidResponses,
			Reward:       e.config.ToolFailureReward * float64(len(invalidResponses)),
			Done:         e.config.DoneOnFailure,
		}, nil
	}

	responses, err := roost.ExecToolCalls(ctx, e.registry, valid, roost.ExecOptions{})
	if err != nil {
		return roost.StepResult{}, err
	}
	observations := make([]roost.Message, 0, len(responses)+len(invalidResponses))
	var totalReward float64
	var anyDone bool
	for i, resp := range responses {
		parsed := gjson.Parse(resp.Content)
		if !parsed.Get("response").Exists() {
			return roost.StepResult{}, fmt.Errorf("malformed outcome from tool %s: %s", resp.ToolName, resp.Content)
		}
		observations = append(observations, roost.NewToolResponse(valid.ToolCalls[i], parsed.Get("response").String()).Message())
		totalReward += parsed.Get("reward").Float()
		anyDone = anyDone || parsed.Get("done").Bool()
	}
	observations = append(observations, invalidResponses...)
	return roost.StepResult{
		Observations: observations,
		Reward:       totalReward,
		Done:         anyDone,
	}, nil
}

// calculate evaluates expr and reports the result. Failures (parse errors,
// non-numeric results, interpreter panics) earn the failure reward and end the
// episode when DoneOnFailure is set.
func (e *CalculatorEnv) calculate(expr string) (out toolOutcome) {
	failure := toolOutcome{
		Response: "Error using calculator",
		Reward:   e.config.ToolFailureReward,
		Done:     e.config.DoneOnFailure,
	}
	defer func() {
		if recover() != nil {
			out = failure
		}
	}()
	v, err := interp.New(interp.Options{}).Eval(strings.TrimSpace(expr))
	if err != nil || !v.IsValid() {
		return failure
	}
	var result float64
	switch {
	case v.CanInt():
		result = float64(v.Int())
	case v.CanFloat():
		result = v.Float()
	case v.CanUint():
		result = float64(v.Uint())
	default:
		return failure
	}
	return toolOutcome{
		Response: formatNumber(result),
		Reward:   e.config.ToolSuccessReward,
		Done:     false,
	}
}

// checkAnswer compares the proposed answer against the ground truth with relative
// tolerance. Checking always ends the episode; a non-numeric proposal counts as a
// tool failure.
func (e *CalculatorEnv) checkAnswer(answer string) toolOutcome {
	proposed, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err != nil {
		return toolOutcome{Response: "false", Reward: e.config.ToolFailureReward, Done: true}
	}
	correct := math.Abs(proposed-e.answer)/(math.Abs(e.answer)+e.config.RelTol) < e.config.RelTol
	reward := e.config.IncorrectReward
	if correct {
		reward = e.config.CorrectReward
	}
	return toolOutcome{Response: strconv.FormatBool(correct), Reward: reward, Done: true}
}

// formatNumber renders integral values without a fractional part, matching how
// humans write intermediate arithmetic results.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ExportFrame snapshots the problem definition.
func (e *CalculatorEnv) ExportFrame() roost.Frame {
	return roost.MustFrame(map[string]any{
		"problem_id": e.problemID,
		"problem":    e.problem,
		"answer":     e.answer,
	}, nil)
}

// ProblemID returns the dataset-assigned identifier of this problem.
func (e *CalculatorEnv) ProblemID() string { return e.problemID }

// Close shuts down the tool registry.
func (e *CalculatorEnv) Close(ctx context.Context) error {
	if e.registry == nil {
		return nil
	}
	return e.registry.Shutdown(ctx)
}

var _ roost.Environment = (*CalculatorEnv)(nil)
