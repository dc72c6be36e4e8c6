package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felapi/fel-auth/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Drivers(t *testing.T) {
	p, err := logging.New(logging.Options{Driver: "glog"})
	require.NoError(t, err)
	assert.NotNil(t, p.GetLogger("auth"))

	p, err = logging.New(logging.Options{Driver: "zap", Level: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, p.GetLogger("auth"))

	_, err = logging.New(logging.Options{Driver: "syslog"})
	assert.Error(t, err)
}

func TestZapLogger_KeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lgr := logging.NewZapLogger(zap.New(core))

	lgr.Info("user registered", "email", "a@x.com")
	lgr.Error("store failed", "id", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "user registered", entries[0].Message)
	assert.Equal(t, "a@x.com", entries[0].ContextMap()["email"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.EqualValues(t, 3, entries[1].ContextMap()["id"])
}

func TestZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logging.ZapLevel("trace"))
	assert.Equal(t, zapcore.WarnLevel, logging.ZapLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, logging.ZapLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, logging.ZapLevel(""))
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fel.log")

	p, err := logging.New(logging.Options{Driver: "zap", File: path, MaxAge: time.Hour})
	require.NoError(t, err)

	p.GetLogger("test").Info("hello", "k", "v")
	_ = p.Sync()

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
