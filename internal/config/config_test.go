package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
netbios:
  server_name: "FILESRV01"
  port: 137

logging:
  level: "debug"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.NetBIOS.ServerName != "FILESRV01" {
		t.Errorf("expected server_name FILESRV01, got %q", cfg.NetBIOS.ServerName)
	}
	if cfg.NetBIOS.Port != 137 {
		t.Errorf("expected port 137, got %d", cfg.NetBIOS.Port)
	}
	if cfg.NetBIOS.BindAddress != "0.0.0.0" {
		t.Errorf("expected default bind_address, got %q", cfg.NetBIOS.BindAddress)
	}
	if cfg.Cluster.RemoteTaskTimeout != 10*time.Second {
		t.Errorf("expected default remote_task_timeout 10s, got %v", cfg.Cluster.RemoteTaskTimeout)
	}
	if cfg.OpLock.BreakTimeout != 30*time.Second {
		t.Errorf("expected default break_timeout 30s, got %v", cfg.OpLock.BreakTimeout)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.NetBIOS.ServerName != "NBCLUSTER" {
		t.Errorf("expected default server_name NBCLUSTER, got %q", cfg.NetBIOS.ServerName)
	}
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.NetBIOS.ServerName = "NODE1"
	cfg.NetBIOS.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
}

func TestApplyDefaults_UppercasesNames(t *testing.T) {
	cfg := &Config{}
	cfg.NetBIOS.ServerName = "filesrv01"
	cfg.NetBIOS.Aliases = []string{"alias1"}
	ApplyDefaults(cfg)

	if cfg.NetBIOS.ServerName != "FILESRV01" {
		t.Errorf("expected uppercased server name, got %q", cfg.NetBIOS.ServerName)
	}
	if cfg.NetBIOS.Aliases[0] != "ALIAS1" {
		t.Errorf("expected uppercased alias, got %q", cfg.NetBIOS.Aliases[0])
	}
}
