package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageRegistry(t *testing.T) {
	stages := Stages()
	assert.Len(t, stages, 5)

	progress := []int{startProgress}
	for _, s := range stages {
		progress = append(progress, s.Progress())
	}
	assert.Equal(t, []int{10, 25, 50, 75, 90, 100}, progress)

	assert.Equal(t, "Document access", StageDocumentAccess.Label())
	assert.Equal(t, "change_confirmation", StageChangeConfirmation.Name())
}

func TestStageStepIndex(t *testing.T) {
	assert.Equal(t, 0, StageDocumentAccess.StepIndex())
	assert.Equal(t, 3, StageDocumentUpdate.StepIndex())
	assert.Equal(t, -1, StageChangeConfirmation.StepIndex())
}

func TestStageUnknown(t *testing.T) {
	s := Stage(42)
	assert.Equal(t, "unknown", s.Name())
	assert.Equal(t, "Unknown stage", s.Label())
	assert.Equal(t, 0, s.Progress())
	assert.Equal(t, -1, s.StepIndex())
}
