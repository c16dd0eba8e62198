package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func TestLogger_CamposEstructurados(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf, logger.Config{Level: "debug", Service: "worker"})

	l.Component("queue").Debug().Str("group_key", "store-1").Msg("sobre procesado")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "worker", line["service"])
	assert.Equal(t, "queue", line["component"])
	assert.Equal(t, "store-1", line["group_key"])
	assert.Equal(t, "debug", line["level"])
}

func TestLogger_FiltroPorNivel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf, logger.Config{Level: "warn"})
	l.Info().Msg("no aparece")
	assert.Zero(t, buf.Len())

	l = logger.NewWithWriter(&buf, logger.Config{Level: "desconocido"})
	l.Debug().Msg("no aparece")
	l.Info().Msg("sí aparece")
	assert.Contains(t, buf.String(), "sí aparece")
	assert.NotContains(t, buf.String(), "no aparece")
}
