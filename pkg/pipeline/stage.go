package pipeline

// Stage is a pipeline run state. Runs move Received → Extracting →
// Retrieving → Consolidating → Committing → Done; Failed is terminal and
// reachable from any non-terminal stage. Empty windows and empty
// extractions short-circuit straight to Done.
type Stage string

// Pipeline run stages.
const (
	StageReceived      Stage = "received"
	StageExtracting    Stage = "extracting"
	StageRetrieving    Stage = "retrieving"
	StageConsolidating Stage = "consolidating"
	StageCommitting    Stage = "committing"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)
