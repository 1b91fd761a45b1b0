package bitrix_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

func TestConditionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cond     bitrix.Condition
		expected string
	}{
		{"equality uses bare field", bitrix.Condition{Field: "STAGE_ID", Op: bitrix.OpEqual}, "STAGE_ID"},
		{"greater or equal", bitrix.Condition{Field: "OPPORTUNITY", Op: bitrix.OpGreaterOrEqual}, ">=OPPORTUNITY"},
		{"less or equal", bitrix.Condition{Field: "OPPORTUNITY", Op: bitrix.OpLessOrEqual}, "<=OPPORTUNITY"},
		{"not equal", bitrix.Condition{Field: "STAGE_ID", Op: bitrix.OpNotEqual}, "!STAGE_ID"},
		{"contains", bitrix.Condition{Field: "NAME", Op: bitrix.OpContains}, "%NAME"},
		{"in", bitrix.Condition{Field: "STAGE_ID", Op: bitrix.OpIn}, "@STAGE_ID"},
		{"not in", bitrix.Condition{Field: "STAGE_ID", Op: bitrix.OpNotIn}, "!@STAGE_ID"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, testCase.expected, testCase.cond.Key())
		})
	}
}

func TestFilterBuild(t *testing.T) {
	t.Parallel()

	t.Run("preserves condition order", func(t *testing.T) {
		t.Parallel()

		params, err := bitrix.NewFilter().
			Equal("STAGE_ID", "NEW").
			Where("OPPORTUNITY", bitrix.OpGreaterOrEqual, 1000).
			Contains("TITLE", "renewal").
			Build()
		require.NoError(t, err)

		assert.Equal(t, []string{"STAGE_ID", ">=OPPORTUNITY", "%TITLE"}, params.Keys())
	})

	t.Run("marshals deterministically", func(t *testing.T) {
		t.Parallel()

		filter := bitrix.NewFilter().
			Equal("B", 2).
			Equal("A", 1).
			Where("C", bitrix.OpGreater, 3)

		params, err := filter.Build()
		require.NoError(t, err)

		first, err := json.Marshal(params)
		require.NoError(t, err)
		assert.JSONEq(t, `{"B":2,"A":1,">C":3}`, string(first))

		// Insertion order, not sorted order, must survive marshaling.
		assert.Equal(t, `{"B":2,"A":1,">C":3}`, string(first))

		second, err := json.Marshal(params)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("comparison operator keys are not escaped", func(t *testing.T) {
		t.Parallel()

		params, err := bitrix.NewFilter().
			Where("OPPORTUNITY", bitrix.OpGreaterOrEqual, 1000).
			Where("DATE_CREATE", bitrix.OpLess, "2024-01-01").
			Build()
		require.NoError(t, err)

		encoded, err := json.Marshal(params)
		require.NoError(t, err)
		assert.Equal(t, `{">=OPPORTUNITY":1000,"<DATE_CREATE":"2024-01-01"}`, string(encoded))
	})

	t.Run("empty field name fails", func(t *testing.T) {
		t.Parallel()

		_, err := bitrix.NewFilter().Equal("", "value").Build()
		require.ErrorIs(t, err, bitrix.ErrInvalidFilter)
	})

	t.Run("unknown operator fails", func(t *testing.T) {
		t.Parallel()

		_, err := bitrix.NewFilter().Where("STAGE_ID", bitrix.Operator("~"), "x").Build()
		require.ErrorIs(t, err, bitrix.ErrInvalidFilter)
	})

	t.Run("repeated key keeps first position and last value", func(t *testing.T) {
		t.Parallel()

		params, err := bitrix.NewFilter().
			Equal("STAGE_ID", "NEW").
			Equal("TITLE", "x").
			Equal("STAGE_ID", "WON").
			Build()
		require.NoError(t, err)

		assert.Equal(t, []string{"STAGE_ID", "TITLE"}, params.Keys())

		value, ok := params.Get("STAGE_ID")
		require.True(t, ok)
		assert.Equal(t, "WON", value)
	})

	t.Run("range adds both bounds", func(t *testing.T) {
		t.Parallel()

		params, err := bitrix.NewFilter().Range("OPPORTUNITY", 100, 5000).Build()
		require.NoError(t, err)
		assert.Equal(t, []string{">=OPPORTUNITY", "<=OPPORTUNITY"}, params.Keys())
	})

	t.Run("range with open upper bound", func(t *testing.T) {
		t.Parallel()

		params, err := bitrix.NewFilter().Range("DATE_CREATE", "2024-01-01", nil).Build()
		require.NoError(t, err)
		assert.Equal(t, []string{">=DATE_CREATE"}, params.Keys())
	})

	t.Run("in condition carries the value slice", func(t *testing.T) {
		t.Parallel()

		params, err := bitrix.NewFilter().In("STAGE_ID", "NEW", "WON").Build()
		require.NoError(t, err)

		encoded, err := json.Marshal(params)
		require.NoError(t, err)
		assert.JSONEq(t, `{"@STAGE_ID":["NEW","WON"]}`, string(encoded))
	})
}

func TestFilterParamsAppendValues(t *testing.T) {
	t.Parallel()

	params, err := bitrix.NewFilter().
		Equal("STAGE_ID", "NEW").
		In("TYPE_ID", "SALE", "GOODS").
		Build()
	require.NoError(t, err)

	values := url.Values{}
	params.AppendValues(values)

	assert.Equal(t, "NEW", values.Get("filter[STAGE_ID]"))
	assert.Equal(t, "SALE", values.Get("filter[@TYPE_ID][0]"))
	assert.Equal(t, "GOODS", values.Get("filter[@TYPE_ID][1]"))
}
