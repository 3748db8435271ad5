// Package classify maps incoming CI/VCS events to a target environment,
// an action, and deploy eligibility.
package classify

import (
	"fmt"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Error is returned for malformed or unrecognized events. It is fatal: the
// pipeline halts before any cloud call is made.
type Error struct {
	Event  types.TriggerEvent
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("classification failed for %s event: %s", e.Event.Type, e.Reason)
}

// Classify derives (environment, action, should_deploy) from an event.
// It is a pure function: the same event always yields the same classification.
// Rules are evaluated in priority order, first match wins:
//
//  1. workflow_dispatch: environment and action taken verbatim.
//  2. pull_request: environment from base branch (main->prod,
//     staging->staging, else dev); plans never auto-deploy.
//  3. push: staging->staging, dev->dev, any other branch is a no-op skip;
//     deploy-eligible.
func Classify(event types.TriggerEvent) (types.Classification, error) {
	switch event.Type {
	case types.EventManualDispatch:
		return classifyDispatch(event)
	case types.EventPullRequest:
		return classifyPullRequest(event)
	case types.EventPush:
		return classifyPush(event)
	case "":
		return types.Classification{}, &Error{Event: event, Reason: "missing event type"}
	default:
		return types.Classification{}, &Error{Event: event, Reason: fmt.Sprintf("unrecognized event type %q", event.Type)}
	}
}

func classifyDispatch(event types.TriggerEvent) (types.Classification, error) {
	env, err := types.ParseEnvironment(string(event.Environment))
	if err != nil {
		return types.Classification{}, &Error{Event: event, Reason: err.Error()}
	}
	action, err := types.ParseAction(string(event.Action))
	if err != nil {
		return types.Classification{}, &Error{Event: event, Reason: err.Error()}
	}

	// A dispatched plan carries no deploy intent: auto-applying a requested
	// read-only plan would mutate an environment nobody asked to change.
	return types.Classification{
		Environment:  env,
		Action:       action,
		ShouldDeploy: action != types.ActionPlan,
		Branch:       event.Ref,
	}, nil
}

func classifyPullRequest(event types.TriggerEvent) (types.Classification, error) {
	if event.BaseBranch == "" {
		return types.Classification{}, &Error{Event: event, Reason: "pull_request event missing base branch"}
	}

	env := types.EnvDev
	switch event.BaseBranch {
	case "main":
		env = types.EnvProd
	case "staging":
		env = types.EnvStaging
	}

	// Pull request plans never auto-deploy.
	return types.Classification{
		Environment:  env,
		Action:       types.ActionPlan,
		ShouldDeploy: false,
		Branch:       event.HeadBranch,
	}, nil
}

func classifyPush(event types.TriggerEvent) (types.Classification, error) {
	if event.Branch == "" {
		return types.Classification{}, &Error{Event: event, Reason: "push event missing branch"}
	}

	var env types.Environment
	switch event.Branch {
	case "staging":
		env = types.EnvStaging
	case "dev":
		env = types.EnvDev
	default:
		return types.Classification{
			Skip:       true,
			SkipReason: fmt.Sprintf("push to %q targets no environment", event.Branch),
		}, nil
	}

	return types.Classification{
		Environment:  env,
		Action:       types.ActionPlan,
		ShouldDeploy: true,
		Branch:       event.Branch,
	}, nil
}
