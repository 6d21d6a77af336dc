package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestInitFallsBackToInfo(t *testing.T) {
	l, err := Init("nonsense", "dev")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer l.Closer()
	if l.Level.Level() != zap.InfoLevel {
		t.Fatalf("expected info level, got %s", l.Level.Level())
	}
}

func TestInitProdLevel(t *testing.T) {
	l, err := Init("WARN", "prod")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer l.Closer()
	if l.Level.Level() != zap.WarnLevel {
		t.Fatalf("expected warn level, got %s", l.Level.Level())
	}
	if l.Component("api") == nil {
		t.Fatal("component logger is nil")
	}
}
