// Package client provides the client for interacting with durableflow workflows.
//
// The client package allows you to start workflow executions, signal, cancel
// and terminate them, wait for their results and read their history.
//
// # Creating a Client
//
// To create a client, you need an established NATS connection and an
// identity that names the caller in workflow history:
//
//	nc, err := nats.Connect("nats://localhost:4222")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	c, err := client.NewClient(client.Options{
//		Conn:     nc,
//		Identity: "checkout-service",
//		Logger:   slog.Default(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Executing Workflows
//
// Use ExecuteWorkflow to start a workflow execution:
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
//		ID:       "order-42",
//		TaskList: "orders",
//	}, OrderWorkflow, "input")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var result string
//	if err := run.Get(ctx, &result); err != nil {
//		log.Fatal(err)
//	}
//
// Starting a workflow id that is already running returns a
// WorkflowExecutionAlreadyStartedError carrying the run id of that run.
//
// # Workflow Results
//
// WorkflowRun.Get long-polls the run's history until it closes. Runs that
// continue as new, or that the service retries, are followed to the last run
// of the chain.
//
// # Namespaces
//
// Namespaces provide logical isolation between different environments or tenants.
// Workflows and task lists are scoped to a namespace.
package client
