package job

import (
	"fmt"
	"jobseries/internal/apperrors"
	"jobseries/internal/objectstore"
	"strings"
)

// Trigger is an event that may move a job to another state.
type Trigger string

// Triggers accepted by the state machine.
const (
	TriggerCancel   Trigger = "cancel"    // explicit cancel request
	TriggerOutput   Trigger = "output"    // outputs found, none is an error log
	TriggerErrorLog Trigger = "error-log" // outputs found, at least one error log
)

// errorLogSuffix marks an output object written by a failed job.
const errorLogSuffix = "error.log"

type edge struct {
	from    Status
	trigger Trigger
}

// transitions is the complete set of legal moves. Anything else is rejected.
var transitions = map[edge]Status{
	{StatusPending, TriggerCancel}:  StatusCancelled,
	{StatusActive, TriggerCancel}:   StatusCancelled,
	{StatusActive, TriggerOutput}:   StatusDone,
	{StatusActive, TriggerErrorLog}: StatusFailed,
}

// Next returns the state reached from `from` on trigger, or an InvalidState error.
func Next(from Status, trigger Trigger) (Status, error) {
	to, ok := transitions[edge{from, trigger}]
	if !ok {
		return "", apperrors.InvalidState(string(trigger),
			fmt.Sprintf("job in state %s does not accept %s", from, trigger))
	}
	return to, nil
}

// OutputTrigger classifies a non-empty output listing. The first object whose
// key ends in error.log makes it TriggerErrorLog.
func OutputTrigger(objects []objectstore.Object) Trigger {
	for _, o := range objects {
		if strings.HasSuffix(o.Key, errorLogSuffix) {
			return TriggerErrorLog
		}
	}
	return TriggerOutput
}
