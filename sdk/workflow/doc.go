// Package workflow provides the programming model for writing durable workflows.
//
// Workflows are deterministic functions that orchestrate activities, timers,
// child workflows and signals. Their progress is recorded by the service as
// history; a worker rebuilds the workflow state by replaying that history
// against the workflow code before running it forward.
//
// # Writing Workflows
//
// A workflow is a regular Go function that takes a workflow.Context as its first parameter:
//
//	func MyWorkflow(ctx workflow.Context, name string) (string, error) {
//		var result string
//		err := workflow.ExecuteActivity(ctx, MyActivity, name).Get(ctx, &result)
//		if err != nil {
//			return "", err
//		}
//		return result, nil
//	}
//
// # Determinism
//
// Every decision the workflow makes must be reproducible from history:
//   - No direct I/O operations (filesystem, network, database)
//   - No random number generation
//   - No wall clock reads (use workflow.Now and workflow.NewTimer)
//   - No goroutines (use workflow.Go)
//
// A replay that issues different commands than the ones recorded fails the
// decision task with a NonDeterminismError. The workflow itself is not
// failed, so a fixed worker can pick it up again.
//
// # Futures
//
// ExecuteActivity, NewTimer, ExecuteChildWorkflow and SignalExternalWorkflow
// return a Future. Get suspends the calling coroutine until the result is
// known; OnSuccess and OnFailure register callbacks that run while history is
// applied. Cancel stops the underlying operation: a command that was not sent
// yet is dropped, otherwise a single cancel command is issued.
//
// # Signals
//
// SetSignalHandler registers a handler per signal name. Signals that arrive
// before the handler registers are buffered and delivered in arrival order.
// Handlers must not block; use GetSignalChannel to wait for a signal.
//
// The proxy subpackage builds a request/response protocol between workflows
// on top of signals.
//
// # Error Handling
//
// Remote failures come back as typed errors: ActivityError,
// ChildWorkflowError, ApplicationError, TimeoutError, CanceledError and
// TerminatedError. Returning an error fails the workflow run; a panic fails it
// with a PanicError.
package workflow
