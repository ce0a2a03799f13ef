package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

type sample struct {
	Content  string   `json:"content" validate:"notblank,max=20"`
	Category string   `json:"category" validate:"category"`
	Preset   string   `json:"preset" validate:"preset"`
	Speed    *float64 `json:"speed" validate:"omitempty,finite"`
}

func TestStruct(t *testing.T) {
	nan := math.NaN()
	one := 1.0

	tests := []struct {
		name   string
		input  sample
		fields []string
	}{
		{name: "valid", input: sample{Content: "hello", Category: "Work", Preset: "calm", Speed: &one}},
		{name: "blank content", input: sample{Content: "   "}, fields: []string{"content"}},
		{name: "too long", input: sample{Content: "this is a very long thought indeed"}, fields: []string{"content"}},
		{name: "bad category", input: sample{Content: "x", Category: "feelings"}, fields: []string{"category"}},
		{name: "bad preset", input: sample{Content: "x", Preset: "frantic"}, fields: []string{"preset"}},
		{name: "nan speed", input: sample{Content: "x", Speed: &nan}, fields: []string{"speed"}},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			appErr := pkgerrors.GetAppError(err)
			for _, f := range tt.fields {
				assert.Contains(t, appErr.Details, f)
			}
		})
	}
}

func TestGetIsShared(t *testing.T) {
	assert.Same(t, Get(), Get())
}
