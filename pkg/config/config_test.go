package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"dagledger/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if AppConfig.DAG.ConfirmationThreshold != 4 {
		t.Fatalf("expected confirmation threshold 4, got %d", AppConfig.DAG.ConfirmationThreshold)
	}
	if AppConfig.DAG.TipCap != 10 {
		t.Fatalf("expected tip cap 10, got %d", AppConfig.DAG.TipCap)
	}
}

func TestLoadConfigSandboxOverride(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	data := []byte("dag:\n  confirmation_threshold: 7\n  tip_cap: 20\napi:\n  listen_addr: \":9090\"\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if AppConfig.DAG.ConfirmationThreshold != 7 {
		t.Fatalf("expected confirmation threshold 7, got %d", AppConfig.DAG.ConfirmationThreshold)
	}
	if AppConfig.DAG.TipCap != 20 {
		t.Fatalf("expected tip cap 20, got %d", AppConfig.DAG.TipCap)
	}
	if AppConfig.API.ListenAddr != ":9090" {
		t.Fatalf("expected listen addr :9090, got %s", AppConfig.API.ListenAddr)
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if AppConfig.DAG.ConfirmationThreshold != 4 {
		t.Fatalf("expected built-in default of 4, got %d", AppConfig.DAG.ConfirmationThreshold)
	}
}
