package roost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rangeArgs struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (a rangeArgs) Validate() error {
	if a.Low > a.High {
		return errors.New("low must not exceed high")
	}
	return nil
}

type ptrValidatedArgs struct {
	Name string `json:"name"`
}

func (a *ptrValidatedArgs) Validate() error {
	if a.Name == "" {
		return errors.New("name must not be empty")
	}
	return nil
}

func TestExtractor_ParseAndValidate(t *testing.T) {
	ext, err := NewExtractor[weatherArgs](false)
	require.NoError(t, err)

	args, err := ext.ParseAndValidate([]byte(`{"city":"Moscow","days":3}`))
	require.NoError(t, err)
	assert.Equal(t, "Moscow", args.City)
	assert.Equal(t, 3, args.Days)
}

func TestExtractor_InvalidJSON(t *testing.T) {
	ext, err := NewExtractor[weatherArgs](false)
	require.NoError(t, err)

	_, err = ext.ParseAndValidate([]byte(`({"city":"Moscow"})`))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, "json parse error")
}

func TestExtractor_SchemaViolation(t *testing.T) {
	ext, err := NewExtractor[weatherArgs](false)
	require.NoError(t, err)

	_, err = ext.ParseAndValidate([]byte(`{"city":123}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, IsClientError(err))
}

func TestExtractor_Layer2ValueReceiver(t *testing.T) {
	ext, err := NewExtractor[rangeArgs](false)
	require.NoError(t, err)

	_, err = ext.ParseAndValidate([]byte(`{"low":5,"high":1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "low must not exceed high")

	args, err := ext.ParseAndValidate([]byte(`{"low":1,"high":5}`))
	require.NoError(t, err)
	assert.Equal(t, 1, args.Low)
}

func TestExtractor_Layer2PointerReceiver(t *testing.T) {
	ext, err := NewExtractor[ptrValidatedArgs](false)
	require.NoError(t, err)

	_, err = ext.ParseAndValidate([]byte(`{"name":""}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name must not be empty")

	args, err := ext.ParseAndValidate([]byte(`{"name":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", args.Name)
}

func TestExtractor_SchemaCopyIsShallow(t *testing.T) {
	ext, err := NewExtractor[weatherArgs](false)
	require.NoError(t, err)

	s1 := ext.Schema()
	s1["type"] = "tampered"
	s2 := ext.Schema()
	assert.Equal(t, "object", s2["type"])
}

func TestExtractor_StrictRejectsExtraKeys(t *testing.T) {
	ext, err := NewExtractor[rangeArgs](true)
	require.NoError(t, err)

	_, err = ext.ParseAndValidate([]byte(`{"low":1,"high":2,"bogus":3}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
