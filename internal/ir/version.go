package ir

// Version constants for the query tree schema and engine.
const (
	// IRVersion is the query tree schema version accepted by the compiler.
	IRVersion = "1"

	// EngineVersion is the sparqlflow engine version.
	EngineVersion = "0.1.0"
)
