package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "descriptor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadDescriptorTopLevelThesis(t *testing.T) {
	path := writeDescriptor(t, `
jobType: research
engagementId: eng-1
thesis: "pricing power is durable"
config:
  maxHypotheses: 3
`)

	descriptor, err := readDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "research", descriptor.JobType)

	cfg := descriptor.workflowConfig()
	assert.Equal(t, "pricing power is durable", cfg["thesis"])
	assert.Equal(t, 3, cfg["maxHypotheses"])
}

func TestReadDescriptorStressTestFields(t *testing.T) {
	path := writeDescriptor(t, `
jobType: stress_test
engagementId: eng-1
stressTestId: st-42
hypothesisIds:
  - 8e7f9f9e-9f3c-4a65-b3d1-29c1a3a34001
config:
  intensity: aggressive
`)

	descriptor, err := readDescriptor(path)
	require.NoError(t, err)

	cfg := descriptor.workflowConfig()
	assert.Equal(t, "st-42", cfg["stressTestId"])
	assert.Equal(t, "aggressive", cfg["intensity"])
	ids, ok := cfg["hypothesisIds"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"8e7f9f9e-9f3c-4a65-b3d1-29c1a3a34001"}, ids)
}

func TestWorkflowConfigExplicitKeyWins(t *testing.T) {
	descriptor := &jobDescriptor{
		JobType:      "research",
		EngagementID: "eng-1",
		Thesis:       "top-level thesis",
		Config:       map[string]any{"thesis": "config thesis"},
	}

	cfg := descriptor.workflowConfig()
	assert.Equal(t, "config thesis", cfg["thesis"])
}

func TestWorkflowConfigNilConfig(t *testing.T) {
	descriptor := &jobDescriptor{
		JobType:      "research",
		EngagementID: "eng-1",
		Thesis:       "only a thesis",
	}

	cfg := descriptor.workflowConfig()
	assert.Equal(t, "only a thesis", cfg["thesis"])
}
