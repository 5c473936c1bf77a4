package backfill

import "fmt"

// Result contains statistics from a backfill run.
type Result struct {
	Files          int
	Malformed      int
	Ingested       int
	Failed         int
	FactsCommitted int
}

// Summary returns a human-readable summary of the backfill result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Backfill complete: %d ingested, %d failed, %d malformed\n"+
			"Scanned %d window files\n"+
			"Total facts committed: %d",
		r.Ingested, r.Failed, r.Malformed,
		r.Files,
		r.FactsCommitted,
	)
}
