package docflow_test

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/docflow"
)

func Example() {
	ctx := context.Background()
	eng := docflow.NewInMemoryEngineWithObserver(nil, docflow.NotifierFunc(
		func(ctx context.Context, id string, doc docflow.WorkDocument) (bool, error) {
			return true, nil
		}))

	inst, _ := docflow.Start(ctx, eng, docflow.DocumentProperties{
		Title:         "Offer Letter",
		CreatedDate:   mustDate("2026-04-01"),
		Creator:       "alice",
		ApplicationID: "A1",
	})
	fmt.Println(inst.Status)

	fb := docflow.Feedback{Feedback: "looks good", Passed: true}
	_, _ = docflow.SendFeedback(ctx, eng, inst.ID, docflow.SignalContractFeedback, fb)
	_, _ = docflow.SendFeedback(ctx, eng, inst.ID, docflow.SignalInterviewFeedback, fb)
	res, _ := docflow.SendFeedback(ctx, eng, inst.ID, docflow.SignalBackgroundCheckFeedback, fb)
	fmt.Println(res.Instance.Status)

	res, _ = docflow.Approve(ctx, eng, inst.ID, true)
	fmt.Println(res.Instance.State, res.Instance.Output)

	// Output:
	// Waiting for feedback
	// Awaiting submission
	// Completed Submitted: True
}

func mustDate(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
