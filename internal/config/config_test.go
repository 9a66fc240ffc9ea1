package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 65000, cfg.Acb.DefaultBudget)
	assert.Equal(t, 2*time.Second, cfg.Acb.Deadline)
	assert.Equal(t, 800*time.Millisecond, cfg.Acb.CategoryTimeout)
	assert.Equal(t, []string{"none", "low", "medium"}, cfg.Acb.AllowedSensitivity)
	assert.Equal(t, "memory", cfg.Acb.HistoryBackend)
	assert.Equal(t, "none", cfg.AI.EmbeddingProvider)
	assert.Equal(t, 300*time.Millisecond, cfg.AI.EmbeddingTimeout)
	assert.Equal(t, "ACB_PROVENANCE", cfg.App.ProvenanceTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ACB_DEFAULT_BUDGET", "26500")
	t.Setenv("ACB_ALPHA", "0.6")
	t.Setenv("ACB_DEADLINE", "750ms")
	t.Setenv("ACB_ALLOWED_SENSITIVITY", " none , low ,,")
	t.Setenv("ACB_HISTORY_BACKEND", "redis")
	t.Setenv("ACB_RETRIEVAL_CONCURRENCY", "not-a-number")

	cfg := Load()

	assert.Equal(t, 26500, cfg.Acb.DefaultBudget)
	assert.InDelta(t, 0.6, cfg.Acb.Alpha, 1e-12)
	assert.Equal(t, 750*time.Millisecond, cfg.Acb.Deadline)
	assert.Equal(t, []string{"none", "low"}, cfg.Acb.AllowedSensitivity)
	assert.Equal(t, "redis", cfg.Acb.HistoryBackend)
	assert.Equal(t, 4, cfg.Acb.Concurrency)
}
