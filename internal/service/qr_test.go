package service

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQR(t *testing.T) {
	rendered, err := RenderQR("2@abcdefghijklmnop,QWERTY==,ZXCV==")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	assert.Greater(t, len(lines), 20)
	assert.Contains(t, rendered, "█")
}

func TestRenderQR_Empty(t *testing.T) {
	_, err := RenderQR("")
	assert.Error(t, err)
}

func TestQRPresenter_Present(t *testing.T) {
	var out bytes.Buffer
	p := NewQRPresenter(quietLogger(), &out)

	p.Present("2@pairing-code")

	assert.NotEmpty(t, out.String())
	assert.Contains(t, out.String(), "█")
}

func TestQRPresenter_RenderFailureStillLogs(t *testing.T) {
	var out bytes.Buffer
	p := NewQRPresenter(quietLogger(), &out)

	p.Present("")

	assert.Empty(t, out.String())
}
