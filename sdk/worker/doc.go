// Package worker runs workflow and activity code against a durableflow
// service.
//
// # Creating a Worker
//
// A worker is created from a client and polls one task list:
//
//	c, err := client.NewClient(client.Options{
//		Conn:     nc,
//		Identity: "orders-worker-1",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	w, err := worker.New(c, worker.Options{
//		TaskList: "orders",
//		Logger:   slog.Default(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Registering Workflows and Activities
//
// Before running the worker, register your workflows and activities:
//
//	// Register workflows
//	err = w.RegisterWorkflow(MyWorkflow)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Register activities under an explicit name
//	err = w.RegisterActivity(MyActivity, worker.RegisterActivityOptions{Name: "my-activity"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Running the Worker
//
// Start the worker to begin processing tasks:
//
//	ctx := context.Background()
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The worker will run until the context is canceled or an error occurs.
// A decision task that fails replay, for example because the workflow code
// changed in a non-deterministic way, is reported back as failed; the
// workflow itself keeps running and is retried by the next worker that
// can replay it.
//
// # Workflow Workers vs Activity Workers
//
// A single worker can execute both workflows and activities. In production,
// you may want to run separate workers for workflows and activities to
// scale them independently.
//
// # Graceful Shutdown
//
// To gracefully shut down a worker, cancel its context:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	// Handle shutdown signal
//	go func() {
//		<-shutdownSignal
//		cancel()
//	}()
//
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Worker Scaling
//
// You can run multiple worker processes to increase throughput. Each worker
// competes for tasks from the same task list. Options.ActivitiesPerSecond
// caps the rate at which one worker takes activity tasks.
package worker
