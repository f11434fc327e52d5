package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %msg %field\n", time: "15:04:05"}
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entry.Level = logrus.WarnLevel
	entry.Message = "attempt failed"
	entry.Data = logrus.Fields{"scenario": "lb-ipv4/udp4", "attempt": 2}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05 [warning] attempt failed attempt=2,scenario=lb-ipv4/udp4\n", string(out))
}

func TestFormatterTrimsEmptyFields(t *testing.T) {
	f := &formatter{pattern: defaultPattern, time: "15:04:05"}
	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.InfoLevel
	entry.Message = "hello"

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(out, []byte("[info] hello\n")), string(out))
}

func TestAdapterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLogrusAdapter(&LoggerConfig{Pattern: "[%level] %msg %field\n", Level: "debug"}, &buf)

	l.WithFields(map[string]interface{}{"k": "v"}).WithError(errors.New("boom")).Debug("dbg")
	assert.Equal(t, "[debug] dbg error=boom,k=v\n", buf.String())
	assert.True(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())
}

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(&LoggerConfig{Level: "loud"})
	assert.Error(t, err)
	assert.NotNil(t, GetLogger())
}

func TestInitFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uoaprobe.log")
	cfg := &LoggerConfig{
		Level: "info",
		Appenders: []AppenderConfig{{
			Type:    AppenderFile,
			Options: map[string]interface{}{"path": path, "max_size_mb": 1},
		}},
	}
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	GetLogger().Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[info] to file")
}

func TestAddAppenderErrors(t *testing.T) {
	m := NewMultiWriter()
	assert.Error(t, m.AddAppender(AppenderConfig{Type: "kafka"}))
	assert.Error(t, m.AddAppender(AppenderConfig{Type: AppenderFile}))
	assert.NoError(t, m.AddAppender(AppenderConfig{Type: AppenderConsole, Options: map[string]interface{}{"stream": "stdout"}}))
}

func TestFormatterCallerTokens(t *testing.T) {
	f := &formatter{pattern: "%level %caller %func: %msg 100%\n", time: "15:04:05"}
	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.ErrorLevel
	entry.Message = "no reply"

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "error - -: no reply 100%\n", string(out))

	entry.Caller = &runtime.Frame{File: "/src/uoaprobe/internal/scenario/runner.go", Line: 42, Function: "firestige.xyz/uoaprobe/internal/scenario.(*Runner).Run"}
	entry.Logger.SetReportCaller(true)
	out, err = f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "error scenario/runner.go:42 Run: no reply 100%\n", string(out))
}
