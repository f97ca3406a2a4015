package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for run observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")
	AttrLLMStatus   = attribute.Key("llm.status")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrStreamChunks = attribute.Key("llm.stream_chunks")

	AttrToolName   = attribute.Key("tool.name")
	AttrToolStatus = attribute.Key("tool.status")

	AttrRunID             = attribute.Key("run.id")
	AttrRunStatus         = attribute.Key("run.status")
	AttrTerminationReason = attribute.Key("run.termination_reason")
	AttrCheckpointReason  = attribute.Key("run.checkpoint_reason")
)
