package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestStatsInt(t *testing.T) {
	s := model.Stats{
		"int":     42,
		"int64":   int64(7),
		"float":   float64(3),
		"number":  json.Number("12"),
		"fnumber": json.Number("1.5e3"),
		"text":    "nope",
		"nil":     nil,
	}

	tests := []struct {
		key  string
		want int64
		ok   bool
	}{
		{"int", 42, true},
		{"int64", 7, true},
		{"float", 3, true},
		{"number", 12, true},
		{"fnumber", 1500, true},
		{"text", 0, false},
		{"nil", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := s.Int(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatsDuration(t *testing.T) {
	s := model.Stats{"total_duration": json.Number("2500000")}

	d, ok := s.Duration("total_duration")
	assert.True(t, ok)
	assert.Equal(t, 2500*time.Microsecond, d)

	_, ok = s.Duration("eval_duration")
	assert.False(t, ok)
}

func TestRequestSystemText(t *testing.T) {
	assert.Empty(t, model.Request{}.SystemText())

	sys := "be brief"
	assert.Equal(t, "be brief", model.Request{System: &sys}.SystemText())
}
