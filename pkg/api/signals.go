package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SignalName identifies one of the external events an instance waits for.
type SignalName string

const (
	SignalInterviewFeedback       SignalName = "InterviewFeedback"
	SignalBackgroundCheckFeedback SignalName = "BackgroundCheckFeedback"
	SignalContractFeedback        SignalName = "ContractFeedback"
	SignalSubmissionApproval      SignalName = "SubmissionApproval"
)

// Signals lists every signal an instance accepts.
var Signals = []SignalName{
	SignalInterviewFeedback,
	SignalBackgroundCheckFeedback,
	SignalContractFeedback,
	SignalSubmissionApproval,
}

// Valid reports whether n is one of the four known signals.
func (n SignalName) Valid() bool {
	switch n {
	case SignalInterviewFeedback, SignalBackgroundCheckFeedback, SignalContractFeedback, SignalSubmissionApproval:
		return true
	}
	return false
}

// IsFeedback reports whether n carries a Feedback payload.
func (n SignalName) IsFeedback() bool {
	return n.Valid() && n != SignalSubmissionApproval
}

// ParseSignalName validates a raw signal name.
func ParseSignalName(s string) (SignalName, error) {
	n := SignalName(s)
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSignal, s)
	}
	return n, nil
}

// DeliveryStatus is the outcome of delivering a signal.
type DeliveryStatus string

const (
	// DeliveryAccepted means the signal was recorded in the history log.
	DeliveryAccepted DeliveryStatus = "Accepted"

	// DeliveryAlreadySatisfied means an earlier signal with the same name was
	// already recorded, or the instance is finished. Nothing was recorded.
	DeliveryAlreadySatisfied DeliveryStatus = "AlreadySatisfied"
)

// SignalResult is returned by Engine.Signal.
type SignalResult struct {
	Delivery DeliveryStatus
	Instance *Instance
}

// EncodeSignalPayload validates payload against the type the signal carries
// and returns its canonical JSON form.
//
// Feedback signals accept Feedback, *Feedback or raw JSON; the approval
// signal accepts bool, *bool or raw JSON.
func EncodeSignalPayload(name SignalName, payload any) (json.RawMessage, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}

	if raw, ok := rawJSON(payload); ok {
		v, err := DecodeSignalPayload(name, raw)
		if err != nil {
			return nil, err
		}
		payload = v
	}

	if name.IsFeedback() {
		var fb Feedback
		switch v := payload.(type) {
		case Feedback:
			fb = v
		case *Feedback:
			if v == nil {
				return nil, fmt.Errorf("%w: nil feedback for %s", ErrInvalidPayload, name)
			}
			fb = *v
		default:
			return nil, fmt.Errorf("%w: %s expects Feedback, got %T", ErrInvalidPayload, name, payload)
		}
		return json.Marshal(fb)
	}

	var approved bool
	switch v := payload.(type) {
	case bool:
		approved = v
	case *bool:
		if v == nil {
			return nil, fmt.Errorf("%w: nil approval for %s", ErrInvalidPayload, name)
		}
		approved = *v
	default:
		return nil, fmt.Errorf("%w: %s expects bool, got %T", ErrInvalidPayload, name, payload)
	}
	return json.Marshal(approved)
}

// DecodeSignalPayload decodes raw JSON into the value carried by name:
// Feedback for the reviewer signals, bool for the approval. A JSON null, or
// a feedback object without both fields, is rejected.
func DecodeSignalPayload(name SignalName, raw []byte) (any, error) {
	switch {
	case !name.Valid():
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	case len(bytes.TrimSpace(raw)) == 0:
		return nil, fmt.Errorf("%w: empty payload for %s", ErrInvalidPayload, name)
	case name.IsFeedback():
		var fb *feedbackWire
		if err := json.Unmarshal(raw, &fb); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
		}
		if fb == nil {
			return nil, fmt.Errorf("%w: null feedback for %s", ErrInvalidPayload, name)
		}
		if fb.Feedback == nil || fb.Passed == nil {
			return nil, fmt.Errorf("%w: %s requires feedback and isPassed", ErrInvalidPayload, name)
		}
		return Feedback{Feedback: *fb.Feedback, Passed: *fb.Passed}, nil
	default:
		var approved *bool
		if err := json.Unmarshal(raw, &approved); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
		}
		if approved == nil {
			return nil, fmt.Errorf("%w: null approval for %s", ErrInvalidPayload, name)
		}
		return *approved, nil
	}
}

// feedbackWire tells missing fields apart from zero values.
type feedbackWire struct {
	Feedback *string `json:"feedback"`
	Passed   *bool   `json:"isPassed"`
}

func rawJSON(v any) ([]byte, bool) {
	switch b := v.(type) {
	case json.RawMessage:
		return b, true
	case []byte:
		return b, true
	}
	return nil, false
}
