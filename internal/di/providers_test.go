package di

import (
	"testing"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/store/duckdb"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Run.SaveDir = t.TempDir()
	return cfg
}

func TestProvideBarProvider(t *testing.T) {
	cfg := testConfig(t)
	p, err := ProvideBarProvider(cfg, nil)
	if err != nil {
		t.Fatalf("csv provider: %v", err)
	}
	if _, ok := p.(*data.CSVProvider); !ok {
		t.Fatalf("expected a CSV provider, got %T", p)
	}

	cfg.Data.Source = "duckdb"
	if _, err := ProvideBarProvider(cfg, nil); err == nil {
		t.Fatalf("expected error without a duckdb client")
	}
	if _, _, err := ProvideDuckDB(cfg); err == nil {
		t.Fatalf("expected error for duckdb source without a path")
	}
}

func TestProvideSinks(t *testing.T) {
	cfg := testConfig(t)
	if sinks := ProvideSinks(nil, nil, nil, cfg); len(sinks) != 0 {
		t.Fatalf("expected no sinks, got %d", len(sinks))
	}

	client, err := duckdb.NewClient(":memory:")
	if err != nil {
		t.Fatalf("duckdb: %v", err)
	}
	defer client.Close()
	sinks := ProvideSinks(client, nil, nil, cfg)
	if len(sinks) != 1 || sinks[0].Name() != "duckdb" {
		t.Fatalf("expected the duckdb sink, got %v", sinks)
	}
}

func TestInitializeAppWithoutBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer cleanup()
	if app.Runner == nil || app.Server == nil {
		t.Fatalf("incomplete app %+v", app)
	}
	if app.Recorder != nil {
		t.Fatalf("expected no recorder with metrics disabled")
	}
}
