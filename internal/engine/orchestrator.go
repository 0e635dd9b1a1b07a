package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/petrijr/docflow/pkg/api"
)

var (
	// errSuspended means the control logic is parked on a wait and the
	// history holds no further input for it.
	errSuspended = errors.New("suspended")

	// errFailed means the control logic recorded InstanceFailed.
	errFailed = errors.New("instance failed")
)

// replay re-executes the control logic of one instance against its history
// log. Inputs are fed to the logic in log order and only when it blocks.
// Decisions are matched one by one against recorded ones; once the
// recorded decisions are used up, new ones are produced.
type replay struct {
	e  *engineImpl
	id string

	// history is everything known to be persisted, including entries
	// flushed during this run.
	history   []api.HistoryEntry
	inputs    []api.HistoryEntry
	decisions []api.HistoryEntry

	nextInput    int
	nextDecision int
	lastFedSeq   int64

	lastSeq  int64
	fresh    []api.HistoryEntry
	produced []api.HistoryEntry

	fired map[api.Phase]bool
	doc   api.WorkDocument
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", api.ErrReplayInconsistent, fmt.Sprintf(format, args...))
}

func newReplay(e *engineImpl, id string, history []api.HistoryEntry) (*replay, error) {
	r := &replay{
		e:       e,
		id:      id,
		history: history,
		fired:   make(map[api.Phase]bool),
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
	}
	r.lastSeq = history[len(history)-1].Sequence

	for i, entry := range history {
		if entry.Sequence != int64(i+1) {
			return r, inconsistent("entry #%d found at position %d", entry.Sequence, i+1)
		}
		switch {
		case !entry.Kind.Known():
			return r, inconsistent("unknown entry kind %q at #%d", entry.Kind, entry.Sequence)
		case entry.Kind == api.EntryInputRecorded:
			if i != 0 {
				return r, inconsistent("input recorded again at #%d", entry.Sequence)
			}
		case i == 0:
			return r, inconsistent("log starts with %s", entry.Kind)
		case entry.Kind.Decision():
			r.decisions = append(r.decisions, entry)
		default:
			r.inputs = append(r.inputs, entry)
		}
	}

	props, err := api.DecodePayload[api.DocumentProperties](history[0])
	if err != nil {
		return r, inconsistent("%v", err)
	}
	r.doc.Properties = props
	return r, nil
}

// advance feeds the next recorded input to the correlation table. It
// returns false when the log holds no further input.
func (r *replay) advance() (bool, error) {
	if r.nextInput >= len(r.inputs) {
		return false, nil
	}
	in := r.inputs[r.nextInput]
	r.nextInput++
	r.lastFedSeq = in.Sequence

	switch in.Kind {
	case api.EntryTimerFired:
		r.fired[api.Phase(in.Name)] = true
	case api.EntrySignalReceived:
		name := api.SignalName(in.Name)
		if !name.Valid() {
			return false, inconsistent("unknown signal %q at #%d", in.Name, in.Sequence)
		}
		// A repeated name cannot be appended by Signal; the first one wins.
		r.e.table.Deliver(r.id, name, in.Payload)
	}
	return true, nil
}

// drain feeds whatever inputs the logic did not need.
func (r *replay) drain() {
	for r.nextInput < len(r.inputs) {
		if _, err := r.advance(); err != nil {
			return
		}
	}
}

func samePayload(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// recorded returns the next recorded decision, if any, checking that it
// comes after every input fed so far.
func (r *replay) recorded() (api.HistoryEntry, bool, error) {
	if r.nextDecision >= len(r.decisions) {
		return api.HistoryEntry{}, false, nil
	}
	rec := r.decisions[r.nextDecision]
	if rec.Sequence < r.lastFedSeq {
		return rec, true, inconsistent("decision #%d precedes input #%d", rec.Sequence, r.lastFedSeq)
	}
	return rec, true, nil
}

// decide reuses the next recorded decision or produces a new entry.
func (r *replay) decide(kind api.EntryKind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	rec, ok, err := r.recorded()
	if err != nil {
		return err
	}
	if ok {
		if rec.Kind != kind || !samePayload(rec.Payload, payload) {
			return inconsistent("expected %s %s at #%d, history has %s", kind, payload, rec.Sequence, rec)
		}
		r.nextDecision++
		return nil
	}

	entry, err := api.NewEntry(r.lastSeq+1, kind, "", json.RawMessage(payload), r.e.clock())
	if err != nil {
		return err
	}
	r.lastSeq++
	r.fresh = append(r.fresh, entry)
	r.produced = append(r.produced, entry)
	return nil
}

func (r *replay) setStatus(status string) error {
	return r.decide(api.EntryStatusChanged, status)
}

func (r *replay) fail(reason string) error {
	if err := r.decide(api.EntryInstanceFailed, api.FailureRecord{Reason: reason}); err != nil {
		return err
	}
	return errFailed
}

// suspend parks the logic. Recorded decisions the logic did not reach mean
// the history was produced by different control logic.
func (r *replay) suspend() error {
	if r.nextDecision < len(r.decisions) {
		return inconsistent("history has %d unmatched decisions from #%d",
			len(r.decisions)-r.nextDecision, r.decisions[r.nextDecision].Sequence)
	}
	return errSuspended
}

// flush persists fresh entries so a side effect never runs ahead of the
// decisions leading to it.
func (r *replay) flush(ctx context.Context) error {
	if len(r.fresh) == 0 {
		return nil
	}
	if err := r.e.store.Append(ctx, r.id, r.fresh...); err != nil {
		return err
	}
	r.history = append(r.history, r.fresh...)
	r.fresh = nil
	return nil
}

// run executes the onboarding control logic. It returns nil on completion,
// errSuspended, errFailed, a replay inconsistency or an infrastructure error.
func (r *replay) run(ctx context.Context) error {
	if err := r.setStatus(api.StatusWaitingForFeedback); err != nil {
		return err
	}

	remaining := append([]wait(nil), feedbackWaits...)
	for {
		var err error
		if remaining, err = r.consumeFeedback(remaining); err != nil {
			return err
		}
		if len(remaining) == 0 {
			break
		}
		if r.fired[api.PhaseFeedback] {
			return r.fail("timed out waiting for feedback: " + joinSignals(signalsOf(remaining)))
		}
		more, err := r.advance()
		if err != nil {
			return err
		}
		if !more {
			return r.suspend()
		}
	}

	if err := r.submit(ctx); err != nil {
		return err
	}

	if err := r.setStatus(api.StatusAwaitingSubmission); err != nil {
		return err
	}

	var raw json.RawMessage
	for {
		var ok bool
		if raw, ok = r.e.table.TryConsume(r.id, approvalWait.Signal); ok {
			break
		}
		if r.fired[api.PhaseApproval] {
			return r.fail("timed out waiting for " + string(approvalWait.Signal))
		}
		more, err := r.advance()
		if err != nil {
			return err
		}
		if !more {
			return r.suspend()
		}
	}

	v, err := api.DecodeSignalPayload(approvalWait.Signal, raw)
	if err != nil {
		return inconsistent("%v", err)
	}
	approved := v.(bool)

	if err := r.setStatus(approvalWait.Status); err != nil {
		return err
	}
	return r.decide(api.EntryOutputSet, formatOutput(approved))
}

func (r *replay) consumeFeedback(remaining []wait) ([]wait, error) {
	left := remaining[:0]
	for _, w := range remaining {
		raw, ok := r.e.table.TryConsume(r.id, w.Signal)
		if !ok {
			left = append(left, w)
			continue
		}
		v, err := api.DecodeSignalPayload(w.Signal, raw)
		if err != nil {
			return nil, inconsistent("%v", err)
		}
		w.Apply(&r.doc, v.(api.Feedback))
		if err := r.setStatus(w.Status); err != nil {
			return nil, err
		}
	}
	return left, nil
}

// submit runs the activity once per instance. A recorded ActivityCompleted
// is reused as is.
func (r *replay) submit(ctx context.Context) error {
	rec, ok, err := r.recorded()
	if err != nil {
		return err
	}
	if ok {
		if rec.Kind != api.EntryActivityCompleted {
			return inconsistent("expected %s at #%d, history has %s", api.EntryActivityCompleted, rec.Sequence, rec)
		}
		r.nextDecision++
		return nil
	}

	if err := r.flush(ctx); err != nil {
		return err
	}

	res, err := r.e.dispatcher.Invoke(ctx, r.id, r.history, r.doc)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case OutcomeSuccess:
		if err := r.decide(api.EntryActivityCompleted, api.ActivityResult{
			Acknowledged: res.Acknowledged,
			Attempts:     res.Attempts,
		}); err != nil {
			return err
		}
		return r.flush(ctx)
	case OutcomeFatalFailure:
		return r.fail(fmt.Sprintf("submission failed: %v", res.Err))
	default:
		return r.fail(fmt.Sprintf("submission failed after %d attempts: %v", res.Attempts, res.Err))
	}
}

func formatOutput(approved bool) string {
	if approved {
		return "Submitted: True"
	}
	return "Submitted: False"
}

func joinSignals(names []api.SignalName) string {
	s := make([]string, len(names))
	for i, n := range names {
		s[i] = string(n)
	}
	return strings.Join(s, ", ")
}
