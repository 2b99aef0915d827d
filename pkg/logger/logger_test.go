package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_ProductionUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := initLogger("warn", false, &buf)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	WithService("optimizer").WithField("session_id", "s-1").Warn("pool rejected")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pool rejected", entry["msg"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "optimizer", entry["service"])
}

func TestInitLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := initLogger("loud", false, &buf)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.Contains(t, buf.String(), "invalid_level")
}

func TestInitLogger_DevelopmentText(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	var buf bytes.Buffer
	log := initLogger("", true, &buf)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	_, isText := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)

	t.Setenv("LOG_FORMAT", "json")
	log = initLogger("", true, &buf)
	_, isJSON := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestWithService(t *testing.T) {
	initLogger("debug", false, &bytes.Buffer{})
	assert.Equal(t, "svc", WithService("svc").Data["service"])
}
