package roost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToolOptions(t *testing.T) {
	var o toolOptions
	for _, opt := range []ToolOption{
		WithStrict(),
		WithTimeout(7 * time.Second),
		WithTags("a", "b"),
		WithVersion("0.3.1"),
		WithDangerous(),
	} {
		opt(&o)
	}
	assert.True(t, o.strict)
	assert.Equal(t, 7*time.Second, o.timeout)
	assert.Equal(t, []string{"a", "b"}, o.tags)
	assert.Equal(t, "0.3.1", o.version)
	assert.True(t, o.dangerous)
}

func TestRegistryOptions_Defaults(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 5*time.Second, reg.opts.timeout)
	assert.Equal(t, 10, reg.opts.maxConcurrency)
	assert.True(t, reg.opts.recoverPanics)
	assert.NotNil(t, reg.sem)
}

func TestRegistryOptions_UnlimitedConcurrency(t *testing.T) {
	reg := NewRegistry(WithMaxConcurrency(0))
	assert.Nil(t, reg.sem)
}
