package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaint(t *testing.T) {
	prev := Enabled
	t.Cleanup(func() { Enabled = prev })

	Enabled = true
	assert.Equal(t, "\033[31mfail\033[0m", RedString("fail"))
	assert.Equal(t, "\033[32mok\033[0m", GreenString("ok"))

	Enabled = false
	assert.Equal(t, "fail", RedString("fail"))
	assert.Equal(t, "wait", YellowString("wait"))
	assert.Equal(t, "info", BlueString("info"))
}
