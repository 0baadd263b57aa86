package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New("loud")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewWithOutput_WritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOutput("debug", buf)

	log.WithField("incident_id", "1").Debug("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "1", entry["incident_id"])
	assert.Equal(t, "debug", entry["level"])
}
