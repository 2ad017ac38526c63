package tutor

import "github.com/calebrin/tutorcore/internal/core"

// step is one provider invocation within a routing plan. Steps run in
// order; useEvidence feeds the previous step's text into the request, which
// forbids running them concurrently.
type step struct {
	capability  core.Capability
	useEvidence bool
}

// buildPlan is the static intent -> capability routing table. MemoryQuery
// returns no steps: it is answered from the session store alone.
func buildPlan(intent core.Intent) []step {
	switch intent {
	case core.IntentExplainConcept:
		return []step{{capability: core.CapabilityExplainer}}
	case core.IntentRequestQuiz:
		return []step{{capability: core.CapabilityQuizGen}}
	case core.IntentLookupFact:
		// Search first, then the explainer grounded on what search found.
		return []step{
			{capability: core.CapabilityWebSearch},
			{capability: core.CapabilityExplainer, useEvidence: true},
		}
	case core.IntentGeneralChat:
		return []step{{capability: core.CapabilityExplainer}}
	case core.IntentMemoryQuery:
		return nil
	}
	return nil
}
