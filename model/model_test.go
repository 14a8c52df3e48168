package model_test

import (
	"testing"

	"github.com/sokinpui/gpt2bot.go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidName(t *testing.T) {
	for _, n := range []string{"124M", "355M", "774M", "1558M"} {
		assert.True(t, model.IsValidName(n), n)
	}
	for _, n := range []string{"", "124m", "117M", "gpt2"} {
		assert.False(t, model.IsValidName(n), n)
	}
}

func TestBackendsRegistered(t *testing.T) {
	assert.Equal(t, []string{"openai", "runtime"}, model.Backends())
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := model.New("tensorflow", model.Options{})
	assert.ErrorIs(t, err, model.ErrBackendNotFound)
}

func TestNewRequiresRuntimeURL(t *testing.T) {
	for _, name := range model.Backends() {
		_, err := model.New(name, model.Options{ModelsDir: t.TempDir()})
		assert.ErrorIs(t, err, model.ErrConfiguration, name)
	}
}

func TestNotDownloadedError(t *testing.T) {
	err := error(&model.NotDownloadedError{Name: "774M"})
	assert.ErrorIs(t, err, model.ErrModelNotDownloaded)
	assert.Equal(t, "model 774M is not downloaded", err.Error())

	var nd *model.NotDownloadedError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, "774M", nd.Name)
}
