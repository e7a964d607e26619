package ir

// Version constants for pipeline definitions and engine.
const (
	// IRVersion is the pipeline definition schema version.
	IRVersion = "1"

	// EngineVersion is the flowstate engine version.
	EngineVersion = "0.1.0"
)
