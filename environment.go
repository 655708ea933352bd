package roost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// Environment is a stateful place where agents use tools and make observations.
// Tools are housed in the environment because they can interact with it.
// Environments (and their contained tools) hold no trainable parameters.
type Environment interface {
	// Reset prepares the environment for a new episode and returns initial
	// observations (e.g. the task instructions) along with the available tools.
	Reset(ctx context.Context) ([]Message, []Tool, error)
	// Step executes one action (a batch of tool calls) and returns new
	// observations, the instantaneous reward, and done/truncated flags.
	Step(ctx context.Context, action ToolRequestMessage) (StepResult, error)
	// ExportFrame snapshots the environment at the current timestep.
	ExportFrame() Frame
	// Close releases environment resources. Implementations may no-op.
	Close(ctx context.Context) error
}

// StepResult is the outcome of a single environment step.
type StepResult struct {
	Observations []Message
	Reward       float64
	Done         bool
	Truncated    bool
}

// ExecOptions controls ExecToolCalls.
type ExecOptions struct {
	// Ordered forces sequential execution in request order. Default is concurrent
	// fan-out (results still come back in request order).
	Ordered bool
	// HandleToolErrors suppresses tool execution errors and returns them as
	// response content, so the agent can observe and correct the failure.
	// Lookup failures (unknown tool names) are never suppressed.
	HandleToolErrors bool
}

// ExecToolCalls executes all tool calls in action against the registry and returns
// one ToolResponseMessage per call, in the same order as the calls.
//
// Unknown tool names always produce an error, regardless of HandleToolErrors:
// environments are expected to split valid from invalid calls first (see
// FilterInvalidToolCalls). Execution errors either abort with the first error or,
// with HandleToolErrors, become response content of the form
// "Failed to execute tool call for tool <name>:\n<error>".
func ExecToolCalls(ctx context.Context, reg *Registry, action ToolRequestMessage, opts ExecOptions) ([]ToolResponseMessage, error) {
	for _, call := range action.ToolCalls {
		if _, ok := reg.GetTool(call.ToolName); !ok {
			return nil, fmt.Errorf("%s is not a valid tool: %w", call.ToolName, ErrToolNotFound)
		}
	}
	results := reg.ExecuteBatch(ctx, action.ToolCalls, opts.Ordered)
	responses := make([]ToolResponseMessage, len(results))
	for i, res := range results {
		call := action.ToolCalls[i]
		if res.Err != nil {
			if !opts.HandleToolErrors {
				return nil, fmt.Errorf("tool %s: %w", call.ToolName, res.Err)
			}
			content := fmt.Sprintf("Failed to execute tool call for tool %s:\n%v", call.ToolName, res.Err)
			responses[i] = NewToolResponse(call, content)
			continue
		}
		responses[i] = NewToolResponse(call, serializeContent(res.Content))
	}
	return responses, nil
}

// serializeContent renders a JSON tool result as response text: JSON string
// results are unquoted to plain text, everything else stays verbatim JSON.
func serializeContent(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if v := gjson.ParseBytes(b); v.Type == gjson.String {
		return v.String()
	}
	return string(b)
}

// FilterInvalidToolCalls splits the calls in action into a valid and an invalid
// subset by registry membership. Calls named InvalidToolName (unparseable
// arguments) are always invalid. Both returned messages share action's role and
// content.
func FilterInvalidToolCalls(reg *Registry, action ToolRequestMessage) (valid, invalid ToolRequestMessage) {
	valid = ToolRequestMessage{Role: action.Role, Content: action.Content}
	invalid = ToolRequestMessage{Role: action.Role, Content: action.Content}
	for _, call := range action.ToolCalls {
		if _, ok := reg.GetTool(call.ToolName); ok && call.ToolName != InvalidToolName {
			valid.ToolCalls = append(valid.ToolCalls, call)
		} else {
			invalid.ToolCalls = append(invalid.ToolCalls, call)
		}
	}
	return valid, invalid
}

// EnvFactory constructs a named environment from loosely-typed parameters
// (e.g. parsed from YAML or JSON config). Use DecodeParams to fill a config struct.
type EnvFactory func(params map[string]any) (Environment, error)

var (
	envRegistryMu sync.RWMutex
	envRegistry   = make(map[string]EnvFactory)
)

// RegisterEnvironment registers an environment factory under a name, typically
// from the environment package's init (driver-style, like database/sql).
// Registering a duplicate name panics.
func RegisterEnvironment(name string, factory EnvFactory) {
	if factory == nil {
		panic("roost: RegisterEnvironment factory must not be nil")
	}
	envRegistryMu.Lock()
	defer envRegistryMu.Unlock()
	if _, dup := envRegistry[name]; dup {
		panic("roost: RegisterEnvironment called twice for " + name)
	}
	envRegistry[name] = factory
}

// NewEnvironment constructs a registered environment by name.
func NewEnvironment(name string, params map[string]any) (Environment, error) {
	envRegistryMu.RLock()
	factory, ok := envRegistry[name]
	envRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown environment name: %s", name)
	}
	return factory(params)
}

// EnvironmentNames returns the registered environment names (unsorted).
func EnvironmentNames() []string {
	envRegistryMu.RLock()
	defer envRegistryMu.RUnlock()
	names := make([]string, 0, len(envRegistry))
	for name := range envRegistry {
		names = append(names, name)
	}
	return names
}

// DecodeParams fills a config struct from loosely-typed factory params via a JSON
// round-trip. Unknown keys are rejected so config typos fail loudly.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
