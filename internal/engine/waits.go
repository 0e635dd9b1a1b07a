package engine

import "github.com/petrijr/docflow/pkg/api"

// wait describes one point where the control logic blocks on a signal.
type wait struct {
	Signal api.SignalName
	Phase  api.Phase

	// Status is recorded when the signal is consumed.
	Status string

	// Apply copies a feedback payload into the work document. Nil for the
	// approval wait.
	Apply func(doc *api.WorkDocument, fb api.Feedback)
}

// feedbackWaits is the fan-in barrier. Arrived signals are consumed in this
// order when more than one is available at once.
var feedbackWaits = []wait{
	{
		Signal: api.SignalInterviewFeedback,
		Phase:  api.PhaseFeedback,
		Status: api.StatusInterviewCollected,
		Apply:  func(doc *api.WorkDocument, fb api.Feedback) { doc.Interview = fb },
	},
	{
		Signal: api.SignalBackgroundCheckFeedback,
		Phase:  api.PhaseFeedback,
		Status: api.StatusBackgroundCheckCollected,
		Apply:  func(doc *api.WorkDocument, fb api.Feedback) { doc.BackgroundCheck = fb },
	},
	{
		Signal: api.SignalContractFeedback,
		Phase:  api.PhaseFeedback,
		Status: api.StatusContractCollected,
		Apply:  func(doc *api.WorkDocument, fb api.Feedback) { doc.Contract = fb },
	},
}

var approvalWait = wait{
	Signal: api.SignalSubmissionApproval,
	Phase:  api.PhaseApproval,
	Status: api.StatusSubmitted,
}

func signalsOf(ws []wait) []api.SignalName {
	out := make([]api.SignalName, len(ws))
	for i, w := range ws {
		out[i] = w.Signal
	}
	return out
}
