package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 15, c.Risk.MaxIterations)
	assert.Equal(t, 1e-4, c.Risk.Epsilon)
	assert.Equal(t, 0.3, c.Risk.ConcentrationThreshold)
	assert.Equal(t, 10, c.Risk.TopNCritical)
	assert.Equal(t, "output", c.Scenario.OutputDir)
	assert.Equal(t, "memory", c.Graph.Backend)
	assert.Equal(t, 5*time.Minute, c.Scenario.LockTTL)
	assert.NoError(t, c.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
graph:
  backend: memgraph
  memgraph:
    uri: bolt://graph:7687
risk:
  max_iterations: 30
  workers: 4
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, "memgraph", c.Graph.Backend)
	assert.Equal(t, "bolt://graph:7687", c.Graph.Memgraph.URI)
	assert.Equal(t, 30, c.Risk.MaxIterations)
	assert.Equal(t, 4, c.Risk.Workers)
	assert.Equal(t, 0.3, c.Risk.ConcentrationThreshold, "untouched fields keep defaults")
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":   "graph:\n  backend: neo\n",
		"threshold": "risk:\n  concentration_threshold: 1.5\n",
		"kafka":     "kafka:\n  enabled: true\n",
		"port":      "server:\n  port: 0\n",
		"queue":     "redis:\n  queue:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "memgraph")
	t.Setenv("MEMGRAPH_URI", "bolt://env:7687")
	t.Setenv("MEMGRAPH_USER", "memgraph")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PORT", "9090")
	t.Setenv("RISK_WORKERS", "not-a-number")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "memgraph", c.Graph.Backend)
	assert.Equal(t, "bolt://env:7687", c.Graph.Memgraph.URI)
	assert.Equal(t, "memgraph", c.Graph.Memgraph.User)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 1, c.Risk.Workers)
}
