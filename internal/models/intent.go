package models

type IntentAction string

const (
	ActionCreate      IntentAction = "create"
	ActionBatchCreate IntentAction = "batch_create"
	ActionUpdate      IntentAction = "update"
	ActionDelete      IntentAction = "delete"
	ActionRead        IntentAction = "read"
	ActionUnknown     IntentAction = "unknown"
)

// Intent is the structured result of parsing one user message.
type Intent struct {
	Action IntentAction
	// Event is set for create. Title and start may be missing if the
	// parser could not work them out.
	Event *EventDefinition
	// Events is set for batch_create.
	Events []EventDefinition
	// TargetID and TargetTitle identify the event for update and delete.
	TargetID    int64
	TargetTitle string
	Patch       EventPatch

	ConfirmationMessage string
}
