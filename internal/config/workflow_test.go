package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := newWorkflowConfigHolder(t.TempDir())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 0.05, cfg.Reconciliation.PriceTolerance)
	assert.Equal(t, 0.05, cfg.Reconciliation.TotalTolerance)
	assert.Equal(t, 0.01, cfg.Reconciliation.QuantityTolerance)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxSizeBytes)
	assert.Contains(t, cfg.Upload.AllowedTypes, "application/pdf")
}

func TestWorkflowConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`workflow:
  reconciliation:
    priceTolerance: 0.1
    totalTolerance: 0.02
  upload:
    maxSizeBytes: 1024
    allowedTypes:
      - application/pdf
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.yml"), content, 0o600))

	holder, err := newWorkflowConfigHolder(dir)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 0.1, cfg.Reconciliation.PriceTolerance)
	assert.Equal(t, 0.02, cfg.Reconciliation.TotalTolerance)
	assert.Equal(t, 0.01, cfg.Reconciliation.QuantityTolerance)
	assert.Equal(t, int64(1024), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, []string{"application/pdf"}, cfg.Upload.AllowedTypes)
}

func TestWorkflowConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`workflow:
  upload:
    maxSizeBytes: 0
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.yml"), content, 0o600))

	_, err := newWorkflowConfigHolder(dir)
	assert.Error(t, err)
}
