package pipeline

import "git.home.luguber.info/inful/matrixci/internal/toolchain"

// Classify maps an entry's raw step results and its allow-failure tag to the
// entry verdict: every step succeeded is a pass; anything else is a fail,
// downgraded to allowed_fail when the entry is tagged allow-failure.
func Classify(entry toolchain.Entry, results []StepResult) Verdict {
	for _, r := range results {
		if !r.Success() {
			if entry.AllowFailure {
				return VerdictAllowedFail
			}
			return VerdictFail
		}
	}
	return VerdictPass
}

// Aggregate reduces all entry verdicts to the pipeline result. Only failing
// entries without the allow-failure tag can fail the pipeline; allowed_fail
// entries display as failed but never flip the aggregate.
func Aggregate(entries []EntryRun) Verdict {
	for _, e := range entries {
		if e.Verdict == VerdictFail {
			return VerdictFail
		}
	}
	return VerdictPass
}
