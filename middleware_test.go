package roost

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	reg := NewRegistry()
	reg.Use(WithLogging(logger))
	reg.Register(&fakeTool{name: "echo", execute: func(_ context.Context, args []byte) ([]byte, error) {
		return args, nil
	}})

	_, err := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "echo", Args: []byte(`{}`)})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "tool start")
	assert.Contains(t, out, "tool end")
	assert.Contains(t, out, "tool=echo")
}

func TestWithLogging_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	reg := NewRegistry()
	reg.Use(WithLogging(logger))
	reg.Register(&fakeTool{name: "fail", execute: func(context.Context, []byte) ([]byte, error) {
		return nil, &ClientError{Reason: "nope"}
	}})

	_, err := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "fail", Args: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "tool error")
}

func TestWithRecovery(t *testing.T) {
	// Disable registry-level recovery so the middleware is what catches the panic.
	reg := NewRegistry(WithRecoverPanics(false))
	reg.Use(WithRecovery())
	reg.Register(&fakeTool{name: "boom", execute: func(context.Context, []byte) ([]byte, error) {
		panic("kaboom")
	}})

	_, err := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "boom", Args: []byte(`{}`)})
	require.Error(t, err)
	assert.True(t, IsSystemError(err))
}

func TestWithTimeoutMiddleware(t *testing.T) {
	reg := NewRegistry(WithDefaultTimeout(5 * time.Second))
	reg.Use(WithTimeoutMiddleware(20 * time.Millisecond))
	reg.Register(&fakeTool{name: "slow", execute: func(ctx context.Context, _ []byte) ([]byte, error) {
		select {
		case <-time.After(time.Second):
			return []byte(`"late"`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})

	_, err := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "slow", Args: []byte(`{}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUse_RewrapsWithoutDoubleWrapping(t *testing.T) {
	var calls int
	counting := func(next Tool) Tool {
		return &fakeTool{name: next.Name(), execute: func(ctx context.Context, args []byte) ([]byte, error) {
			calls++
			return next.Execute(ctx, args)
		}}
	}

	reg := NewRegistry()
	reg.Register(&fakeTool{name: "echo"})
	reg.Use(counting)
	reg.Use(counting) // replaces, does not stack

	_, err := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "echo", Args: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUse_AppliesToLaterRegistrations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	reg := NewRegistry()
	reg.Use(WithLogging(logger))
	reg.Register(&fakeTool{name: "late"})

	_, err := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "late", Args: []byte(`{}`)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "tool=late")
}

func TestMiddleware_PreservesMetadata(t *testing.T) {
	tool := newAddTool(t, WithTimeout(3*time.Second), WithTags("math"), WithVersion("2.0"), WithDangerous())
	wrapped := WithRecovery()(tool)

	tm, ok := wrapped.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, tm.Timeout())
	assert.Equal(t, []string{"math"}, tm.Tags())
	assert.Equal(t, "2.0", tm.Version())
	assert.True(t, tm.IsDangerous())
	assert.Equal(t, "add", wrapped.Name())
	assert.Equal(t, tool.Description(), wrapped.Description())
}
