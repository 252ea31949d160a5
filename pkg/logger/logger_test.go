package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"fieldcrew/backend/config"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := NewLogger(&config.LogConfig{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("format=%s: NewLogger 失败: %v", format, err)
		}
		if !l.Core().Enabled(zap.DebugLevel) {
			t.Errorf("format=%s: 期望启用 debug 级别", format)
		}
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(&config.LogConfig{Level: "loud", Format: "json"}); err == nil {
		t.Error("无效日志级别应返回错误")
	}
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop()
	if FromContext(context.Background(), fallback) != fallback {
		t.Error("context 中无 logger 时应返回 fallback")
	}

	reqLogger := zap.NewNop().With(zap.String("request_id", "r-1"))
	ctx := WithContext(context.Background(), reqLogger)
	if FromContext(ctx, fallback) != reqLogger {
		t.Error("应返回 context 中的 logger")
	}
}
