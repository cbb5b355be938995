package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultConfigPasses(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected default config to pass validation, got: %v", err)
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "VERBOSE"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("expected 'oneof' in error, got: %v", err)
	}
}

func TestValidateRejectsPortOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Port = 70000
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Fatalf("expected 'max' in error, got: %v", err)
	}
}

func TestValidateRejectsZeroShutdownTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShutdownTimeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for zero shutdown timeout")
	}
}
