// ABOUTME: Tagged action model for requires_action batches
// ABOUTME: Splits remote tool calls into ordinary invocations and delegation handoffs

package thread

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/tools"
)

// Action is one classified tool call. The concrete type is ToolInvocation or Delegation.
type Action interface {
	action()
}

// ToolInvocation is an ordinary registry-dispatched tool call.
type ToolInvocation struct {
	CallID    string
	Name      string
	Arguments string
}

// Delegation hands the turn to another assistant.
type Delegation struct {
	CallID string
	Target string
}

func (ToolInvocation) action() {}
func (Delegation) action()     {}

// Classify converts a batch of remote calls into actions, keeping remote order.
// A delegation without a string target id is rejected with ErrDelegation.
func Classify(calls []remote.ToolCall) ([]Action, error) {
	actions := make([]Action, 0, len(calls))
	for _, call := range calls {
		if call.Name != tools.DelegateToolName {
			actions = append(actions, ToolInvocation{
				CallID:    call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			})
			continue
		}

		target := gjson.Get(call.Arguments, tools.DelegateTargetArg)
		if target.Type != gjson.String || strings.TrimSpace(target.Str) == "" {
			return nil, fmt.Errorf("%w: call %s has no %s", ErrDelegation, call.ID, tools.DelegateTargetArg)
		}
		actions = append(actions, Delegation{CallID: call.ID, Target: strings.TrimSpace(target.Str)})
	}
	return actions, nil
}
