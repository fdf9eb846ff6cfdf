package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARN", false))
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("", true))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose", false))
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", false)

	l.Info("被过滤")
	l.Warn("名单拉取失败", zap.Int64("group_id", 42))
	_ = l.Sync()

	out := buf.String()
	assert.NotContains(t, out, "被过滤")
	assert.Contains(t, out, "名单拉取失败")
	assert.Contains(t, out, `"group_id": 42`)
}
