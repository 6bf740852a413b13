package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verboso"))
}

func TestComponent_AgregaServicioYComponente(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Env: "production", Level: "info", Service: "contratos-api", Out: &buf})

	gw := l.Component("gateway")
	gw.Info().Str("code", "AUTH_INVALID").Msg("handshake rechazado")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "contratos-api", line["service"])
	assert.Equal(t, "gateway", line["component"])
	assert.Equal(t, "AUTH_INVALID", line["code"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_RespetaNivel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Env: "production", Level: "warn", Out: &buf})

	l.Info().Msg("no debe salir")
	l.Warn().Msg("sí")

	out := strings.TrimSpace(buf.String())
	assert.NotContains(t, out, "no debe salir")
	assert.Contains(t, out, `"message":"sí"`)
}
