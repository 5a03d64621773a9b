package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "not-a-level"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown log level")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "xml"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}

func TestNewWithStdoutSucceeds(t *testing.T) {
	cfg := DefaultConfig()
	log, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello")
	// Sync on a stdout/stderr syncer can return a harmless "invalid
	// argument" on some platforms; only the call itself matters here.
	_ = log.Sync()
}

func TestWithAddsFields(t *testing.T) {
	log, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := log.With(zap.String("component", "test"))
	child.Info("from child")
}
