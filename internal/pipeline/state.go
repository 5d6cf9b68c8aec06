package pipeline

import "fmt"

// State is the progress of one building through the pipeline.
type State int

const (
	Idle State = iota
	GeneratingLeaseDocs
	PackingSummary
	UploadingParts
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GeneratingLeaseDocs:
		return "generating_lease_docs"
	case PackingSummary:
		return "packing_summary"
	case UploadingParts:
		return "uploading_parts"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// next reports whether to may follow s.
func (s State) next(to State) bool {
	if to == s {
		return to == GeneratingLeaseDocs
	}
	return to == s+1
}
