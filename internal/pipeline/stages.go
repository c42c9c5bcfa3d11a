package pipeline

// Stage is one of the five fixed pipeline steps, in execution order
type Stage int

const (
	StageDocumentAccess Stage = iota
	StageContentAnalysis
	StageFeedbackGeneration
	StageDocumentUpdate
	StageChangeConfirmation
)

// stageDefinition holds the fixed metadata of a stage
type stageDefinition struct {
	Name  string
	Label string
	// Progress is the checkpoint reached when the stage succeeds
	Progress int
}

// stageRegistry lists the stages in order. Progress starts at startProgress when
// the runner picks the job up and moves to each stage's checkpoint as it succeeds.
var stageRegistry = []stageDefinition{
	StageDocumentAccess:     {Name: "document_access", Label: "Document access", Progress: 25},
	StageContentAnalysis:    {Name: "content_analysis", Label: "Content analysis", Progress: 50},
	StageFeedbackGeneration: {Name: "feedback_generation", Label: "Feedback generation", Progress: 75},
	StageDocumentUpdate:     {Name: "document_update", Label: "Document update", Progress: 90},
	StageChangeConfirmation: {Name: "change_confirmation", Label: "Change confirmation", Progress: 100},
}

const (
	startProgress = 10

	labelCompleted   = "Completed"
	labelTimedOut    = "Timed out"
	labelInterrupted = "Interrupted"
	failedLabelFmt   = "Failed: %s"
)

// Stages returns every stage in execution order
func Stages() []Stage {
	stages := make([]Stage, len(stageRegistry))
	for i := range stageRegistry {
		stages[i] = Stage(i)
	}
	return stages
}

// Name is the stable identifier used in logs and metrics
func (s Stage) Name() string {
	if !s.valid() {
		return "unknown"
	}
	return stageRegistry[s].Name
}

// Label is the human-readable current-step text
func (s Stage) Label() string {
	if !s.valid() {
		return "Unknown stage"
	}
	return stageRegistry[s].Label
}

// Progress is the checkpoint reached when s succeeds
func (s Stage) Progress() int {
	if !s.valid() {
		return 0
	}
	return stageRegistry[s].Progress
}

// StepIndex is the position of s in the job's step details, or -1 for change confirmation
func (s Stage) StepIndex() int {
	if s >= StageChangeConfirmation || s < 0 {
		return -1
	}
	return int(s)
}

func (s Stage) valid() bool {
	return s >= 0 && int(s) < len(stageRegistry)
}
