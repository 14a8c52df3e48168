package main

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/sokinpui/gpt2bot.go/internal/lifecycle"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
	"github.com/sokinpui/gpt2bot.go/model/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChanges(t *testing.T) {
	b, err := parseChanges([]string{"length=200", "temperature=0.7", "model_name=355M"})
	require.NoError(t, err)
	assert.Equal(t, store.Batch{
		{Key: "length", Value: "200"},
		{Key: "temperature", Value: "0.7"},
		{Key: "model_name", Value: "355M"},
	}, b)

	_, err = parseChanges([]string{"length"})
	assert.Error(t, err)
	_, err = parseChanges([]string{"=3"})
	assert.Error(t, err)
}

func TestPrintConfig(t *testing.T) {
	defer func(prev string) { configOutput = prev }(configOutput)
	cfg := store.Defaults()

	tests := []struct {
		format string
		want   string
	}{
		{"text", "model_name=124M\n"},
		{"json", `"model_name": "124M"`},
		{"yaml", "model_name: 124M\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			configOutput = tt.format
			var buf bytes.Buffer
			require.NoError(t, printConfig(&buf, cfg))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	configOutput = "xml"
	assert.Error(t, printConfig(&bytes.Buffer{}, cfg))
}

func TestDownloadAll(t *testing.T) {
	adapter := modeltest.New("124M")
	lm := lifecycle.New(adapter)

	var got []string
	err := downloadAll(context.Background(), lm, adapter, []string{"124M", "355M", "774M"}, func(name string, cached bool) {
		if cached {
			name += " cached"
		}
		got = append(got, name)
	})
	require.NoError(t, err)

	sort.Strings(got)
	assert.Equal(t, []string{"124M cached", "355M", "774M"}, got)
	assert.Equal(t, 2, adapter.DownloadCount())
	assert.True(t, adapter.IsDownloaded("774M"))
}

func TestDownloadAllFailure(t *testing.T) {
	adapter := modeltest.New()
	adapter.FailDownload("355M", errors.New("connection reset"))
	lm := lifecycle.New(adapter)

	err := downloadAll(context.Background(), lm, adapter, []string{"355M"}, func(string, bool) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDownload)
	assert.Contains(t, err.Error(), "355M")
}
