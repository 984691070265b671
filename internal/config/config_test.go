package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars_Set(t *testing.T) {
	os.Setenv("AGENDIA_TEST_VAR", "hello")
	defer os.Unsetenv("AGENDIA_TEST_VAR")

	result := ExpandEnvVars("key: ${AGENDIA_TEST_VAR}")
	if result != "key: hello" {
		t.Errorf("expected 'key: hello', got %q", result)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("AGENDIA_MISSING_VAR")
	result := ExpandEnvVars("${AGENDIA_MISSING_VAR:-fallback}")
	if result != "fallback" {
		t.Errorf("expected 'fallback', got %q", result)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("AGENDIA_MISSING_VAR")
	input := "${AGENDIA_MISSING_VAR}"
	result := ExpandEnvVars(input)
	if result != input {
		t.Errorf("unset var without default should stay literal, got %q", result)
	}
}

func TestDefaults_Validate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for bad port")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error should mention server.port: %v", err)
	}
}

func TestValidate_EventsNeedURL(t *testing.T) {
	cfg := Defaults()
	cfg.Events.Enabled = true
	cfg.Events.URL = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for events without url")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Server.Port = 9999
	cfg.Gateway.InstanceName = "test-instance"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", loaded.Server.Port)
	}
	if loaded.Gateway.InstanceName != "test-instance" {
		t.Errorf("expected instance 'test-instance', got %q", loaded.Gateway.InstanceName)
	}
}

func TestLoad_EnvExpansionInFile(t *testing.T) {
	os.Setenv("AGENDIA_TEST_KEY", "sk-test")
	defer os.Unsetenv("AGENDIA_TEST_KEY")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"provider": {"apiKey": "${AGENDIA_TEST_KEY}"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Provider.APIKey != "sk-test" {
		t.Errorf("expected expanded api key, got %q", loaded.Provider.APIKey)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
