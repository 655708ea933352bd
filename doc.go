// Package roost provides tool-calling environments for LLM agents: a type-safe
// engine for registering, describing, and safely executing tools, plus an
// environment/episode layer and task datasets that yield environment instances.
//
// # Overview
//
// LLMs produce tool calls as JSON. This package turns that JSON into concrete Go
// function calls: unmarshal → validate (against the same JSON Schema shown to the
// LLM) → execute → marshal result or return a clear error for self-correction.
// An Environment wraps a Registry of tools behind Reset/Step and turns batches of
// tool calls into observations, a scalar reward, and done/truncated flags.
//
// Pipeline: Go function + argument struct → NewTool (reflection + schema) → Tool →
// Registry → ExecToolCalls (unmarshal, validate, call, marshal) → ToolResponseMessage.
//
// # Key concepts
//
//   - Single Source of Truth: one set of struct tags drives both the schema sent
//     to the LLM and the validation of incoming JSON.
//   - Partial Success: ExecuteBatch collects all results; one failure does not cancel others.
//   - Self-Correction: ClientError carries human-readable messages back to the LLM.
//   - Order: tool responses always match the order of their requests.
//
// See Tool, ToolCall, Environment, and TaskDataset for the core types, and
// NewTool / NewRegistry for setup.
//
// # Example
//
//	type Args struct { Expr string `json:"expr" description:"Expression to evaluate"` }
//	tool, err := roost.NewTool("calculator", "Evaluate an expression", func(_ context.Context, a Args) (float64, error) {
//	    return eval(a.Expr)
//	})
//	if err != nil { ... }
//	reg := roost.NewRegistry()
//	reg.Register(tool)
//	call, _ := roost.NewToolCall("calculator", Args{Expr: "2+2"})
//	msgs, err := roost.ExecToolCalls(ctx, reg, roost.ToolRequestMessage{ToolCalls: []roost.ToolCall{call}}, roost.ExecOptions{})
package roost
