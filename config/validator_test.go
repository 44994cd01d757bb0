package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEnvironment(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"", false},
		{"dev", false},
		{"Production", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.App.Environment = tt.env
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected %q valid, got %v", tt.env, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected %q invalid, got nil", tt.env)
			}
		})
	}
}

func TestValidateWithDetails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Name = ""
	cfg.Server.Port = 0
	cfg.Log.Level = "loud"

	err := ValidateWithDetails(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	var details ValidationErrors
	if !errors.As(err, &details) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(details) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(details), details)
	}

	byField := make(map[string]ConfigError)
	for _, d := range details {
		byField[d.Field] = d
	}

	if _, ok := byField["Config.App.Name"]; !ok {
		t.Error("expected error for Config.App.Name")
	}
	if d, ok := byField["Config.Log.Level"]; !ok {
		t.Error("expected error for Config.Log.Level")
	} else if !strings.Contains(d.Message, "must be one of") {
		t.Errorf("unexpected message for log level: %s", d.Message)
	}

	msg := err.Error()
	if !strings.Contains(msg, "configuration validation failed") {
		t.Errorf("unexpected aggregate message: %s", msg)
	}
}

func TestValidateWithDetails_Valid(t *testing.T) {
	if err := ValidateWithDetails(DefaultConfig()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestConfigError_Error(t *testing.T) {
	e := ConfigError{Field: "Config.Server.Port", Message: "must be at least 1", Value: 0}
	got := e.Error()
	if !strings.Contains(got, "Config.Server.Port") || !strings.Contains(got, "got 0") {
		t.Errorf("unexpected error string: %s", got)
	}
}

func TestValidationErrors_Empty(t *testing.T) {
	var e ValidationErrors
	if e.Error() != "no validation errors" {
		t.Errorf("unexpected empty message: %s", e.Error())
	}
}
