package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CompletionState is where a tracker sits in the completion workflow.
type CompletionState string

const (
	CompletionStateActive          CompletionState = "ACTIVE"
	CompletionStatePendingDecision CompletionState = "COMPLETED_PENDING_DECISION"
	CompletionStateRetained        CompletionState = "COMPLETED_RETAINED"
	CompletionStateDeleted         CompletionState = "DELETED"
)

// CompletionStateOf derives the workflow state of an existing tracker from the
// latest observed delivery status. A nil tracker is Deleted.
func CompletionStateOf(t *Tracker, status DeliveryStatus) CompletionState {
	switch {
	case t == nil:
		return CompletionStateDeleted
	case t.Retain:
		return CompletionStateRetained
	case status == DeliveryStatusCompleted:
		return CompletionStatePendingDecision
	default:
		return CompletionStateActive
	}
}

// NeedsCompletionPrompt reports whether a prompt is due for this poll cycle.
// Prompts repeat every cycle until the subscriber keeps or deletes the tracker.
func NeedsCompletionPrompt(t *Tracker, status DeliveryStatus) bool {
	return CompletionStateOf(t, status) == CompletionStatePendingDecision
}

type ActionKind string

const (
	ActionKeep   ActionKind = "keep"
	ActionDelete ActionKind = "delete"
)

func ParseActionKind(s string) (ActionKind, error) {
	switch ActionKind(strings.ToLower(strings.TrimSpace(s))) {
	case ActionKeep:
		return ActionKeep, nil
	case ActionDelete:
		return ActionDelete, nil
	}
	return "", fmt.Errorf("unknown completion action %q", s)
}

// CompletionAction is the subscriber's answer to a completion prompt.
type CompletionAction struct {
	TrackerID int64
	Action    ActionKind
}

const completionActionPrefix = "cc"

// Encode renders the action as compact callback data, e.g. "cc:keep:42".
func (a CompletionAction) Encode() string {
	return fmt.Sprintf("%s:%s:%d", completionActionPrefix, a.Action, a.TrackerID)
}

func DecodeCompletionAction(data string) (CompletionAction, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != completionActionPrefix {
		return CompletionAction{}, fmt.Errorf("malformed completion action %q", data)
	}
	kind, err := ParseActionKind(parts[1])
	if err != nil {
		return CompletionAction{}, err
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return CompletionAction{}, fmt.Errorf("malformed tracker id in %q", data)
	}
	return CompletionAction{TrackerID: id, Action: kind}, nil
}
