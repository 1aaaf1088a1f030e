package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	assert.NotNil(t, logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_WithoutContextLogger(t *testing.T) {
	retrieved := G(context.Background())

	assert.NotNil(t, retrieved)
	assert.Equal(t, L.Logger, retrieved.Logger)
}

func TestWithLogger(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithField("skill", "translate")
	ctx := WithLogger(context.Background(), entry)

	retrieved := G(ctx)
	assert.Equal(t, "translate", retrieved.Data["skill"])
}

func TestWithFields(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithField("command", "ask")
	ctx := WithLogger(context.Background(), entry)
	ctx = WithFields(ctx, logrus.Fields{"session_id": "abc"})

	retrieved := G(ctx)
	assert.Equal(t, "ask", retrieved.Data["command"])
	assert.Equal(t, "abc", retrieved.Data["session_id"])
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	setLoggerFormat(logger, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(logger))
	G(ctx).Info("installed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["logLevel"])
	assert.Equal(t, "installed", line["message"])

	ts, ok := line["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestConfigure(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, Configure("debug", "fmt"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, Configure("loud", "fmt"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	require.NoError(t, Configure("", "fmt"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
}
