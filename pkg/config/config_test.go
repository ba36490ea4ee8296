package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if c.Model.NSteps != 30 || c.Model.SplitRatio != 0.8 || c.Model.HiddenSize != 50 || c.Model.Epochs != 100 {
		t.Fatalf("unexpected model defaults %+v", c.Model)
	}
	if c.Run.SaveDir != "results" || c.Run.Workers != 1 || c.Run.TickerTimeout != 30*time.Minute {
		t.Fatalf("unexpected run defaults %+v", c.Run)
	}
	if c.NATS.StreamName != "augur" || c.Milvus.Collection != "prediction_contexts" || !c.Metrics.Enabled {
		t.Fatalf("unexpected integration defaults")
	}
	types, err := c.Model.ModelTypes()
	if err != nil || len(types) != 2 || types[0] != model.ModelLSTM || types[1] != model.ModelGRU {
		t.Fatalf("unexpected model types %v (%v)", types, err)
	}
	tc := c.Model.Training()
	if tc.StepSize != 50 || tc.Gamma != 0.1 || tc.BatchSize != 64 {
		t.Fatalf("unexpected training config %+v", tc)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
tickers: [AAPL, MSFT]
data:
  start_date: "2020-01-01"
  end_date: "2023-12-31"
model:
  types: [GRU]
  dropout: 0
  epochs: 5
metrics:
  enabled: false
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Model.Dropout != 0 || c.Model.Epochs != 5 || c.Model.NSteps != 30 {
		t.Fatalf("unexpected model config %+v", c.Model)
	}
	if c.Metrics.Enabled {
		t.Fatalf("explicit false should override the default")
	}
	start, end, err := c.Data.Range()
	if err != nil || start.Year() != 2020 || end.Year() != 2023 {
		t.Fatalf("unexpected range %v %v (%v)", start, end, err)
	}
	if n := c.Model.Network(23, model.ModelGRU); n.InputSize != 23 || n.Cell != model.ModelGRU || n.NumLayers != 2 {
		t.Fatalf("unexpected network %+v", n)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad model":   "model:\n  types: [RNN]\n",
		"bad ratio":   "model:\n  split_ratio: 1.5\n",
		"bad date":    "data:\n  start_date: 01/02/2020\n",
		"inverted":    "data:\n  start_date: \"2021-01-01\"\n  end_date: \"2020-01-01\"\n",
		"bad level":   "log:\n  level: loud\n",
		"bad workers": "run:\n  workers: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := writeConfig(t, "tickers: [AAPL]\n")
	t.Setenv("AUGUR_TICKERS", "nvda, tsla,,")
	t.Setenv("AUGUR_WORKERS", "4")
	t.Setenv("AUGUR_NATS_URL", "nats://queue:4222")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Tickers) != 2 || c.Tickers[0] != "NVDA" || c.Tickers[1] != "TSLA" {
		t.Fatalf("unexpected tickers %v", c.Tickers)
	}
	if c.Run.Workers != 4 || c.NATS.URL != "nats://queue:4222" {
		t.Fatalf("env overrides not applied: %+v %+v", c.Run, c.NATS)
	}

	t.Setenv("AUGUR_WORKERS", "many")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("expected error for non-numeric workers")
	}
}

func TestLoadWithEnvWithoutFile(t *testing.T) {
	t.Setenv("AUGUR_SAVE_DIR", "/tmp/out")
	c, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Run.SaveDir != "/tmp/out" || c.Model.NSteps != 30 {
		t.Fatalf("expected defaults with env overrides, got %+v", c.Run)
	}
}
