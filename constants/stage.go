package constants

// Stage names one unit of work in the processing graph. The graph is fixed:
//
//	extract --> parse --> { bias, anonymize, salary, career }
type Stage string

const (
	StageExtract   Stage = "extract"
	StageParse     Stage = "parse"
	StageBias      Stage = "bias"
	StageAnonymize Stage = "anonymize"
	StageSalary    Stage = "salary"
	StageCareer    Stage = "career"
)

// AllStages lists every stage in graph order.
var AllStages = []Stage{
	StageExtract,
	StageParse,
	StageBias,
	StageAnonymize,
	StageSalary,
	StageCareer,
}

// EnrichmentStages are the four independent stages fanned out after parse.
// Their relative completion order never affects the aggregate result.
var EnrichmentStages = []Stage{
	StageBias,
	StageAnonymize,
	StageSalary,
	StageCareer,
}

// Successors returns the stages to enqueue once the given stage succeeds.
// Successor resolution is owned by the orchestrator, not the executors.
func Successors(s Stage) []Stage {
	switch s {
	case StageExtract:
		return []Stage{StageParse}
	case StageParse:
		return EnrichmentStages
	default:
		return nil
	}
}

// Valid reports whether s is one of the six known stages.
func Valid(s Stage) bool {
	switch s {
	case StageExtract, StageParse, StageBias, StageAnonymize, StageSalary, StageCareer:
		return true
	}
	return false
}

// IsEnrichment reports whether s is part of the fan-out.
func IsEnrichment(s Stage) bool {
	switch s {
	case StageBias, StageAnonymize, StageSalary, StageCareer:
		return true
	}
	return false
}
