package main

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunJobCommand_MissingJobIDFlag(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "run-job")
	output, err := cmd.CombinedOutput()

	assert.Error(t, err)
	assert.Contains(t, string(output), "required flag(s) \"job-id\" not set")
}

func TestRunJobCommand_InvalidJobID(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	_, err := executeRoot(t, "run-job", "--job-id", "nope")
	t.Cleanup(func() { runJobID = "" })

	assert.ErrorContains(t, err, "invalid --job-id")
}

func TestRunJobCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := executeRoot(t, "run-job", "--job-id", "6f1c1a9e-3c43-4c2a-9a8e-6f6f0c3b3c11")
	t.Cleanup(func() { runJobID = "" })

	assert.ErrorContains(t, err, "DATABASE_URL is required")
	assert.ErrorContains(t, err, "GEMINI_API_KEY is required")
}
