package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		// an explicit path that does not exist should fail
		t.Fatalf("expected error for explicit missing file")
	}

	// no path: missing file is tolerated, defaults apply
	t.Chdir(t.TempDir())

	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.General.RequestTimeout != 300*time.Second {
		t.Fatalf("request_timeout = %v", cfg.General.RequestTimeout)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Search.WebProvider != "tavily" || cfg.Search.AcademicProvider != "exa" {
		t.Fatalf("search defaults = %+v", cfg.Search)
	}
	if cfg.Storage.Redis.TTL != 24*time.Hour {
		t.Fatalf("redis ttl = %v", cfg.Storage.Redis.TTL)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":9090"
  jwt_secret: "s3cret"
llm:
  routing:
    chat: "openai:gpt4"
    fallback: "openai:mini"
storage:
  postgres:
    url: "postgres://u:p@localhost:5432/quest?sslmode=disable"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9090" || cfg.Server.JWTSecret != "s3cret" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.LLM.Routing.Chat != "openai:gpt4" {
		t.Fatalf("routing = %+v", cfg.LLM.Routing)
	}
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil || dsn != "postgres://u:p@localhost:5432/quest?sslmode=disable" {
		t.Fatalf("dsn = %q, %v", dsn, err)
	}
}

func TestPostgresDSNFromParts(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "quest", Pass: "pw", DBName: "quest"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "postgres://quest:pw@db:5432/quest?sslmode=disable" {
		t.Fatalf("dsn = %q", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("empty config must fail")
	}
}
