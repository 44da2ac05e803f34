// Package saga runs business transactions as an ordered sequence of compensable steps.
//
// Steps are registered once in a StepRegistry under a StepID, together with the
// factory that builds a fresh instance per attempt and, optionally, the event the
// step emits after the saga succeeds. An Orchestrator holds the plan:
//
//	registry := saga.NewStepRegistry()
//	registry.MustRegister(saga.StepDefinition{ID: "create_order", New: newCreateOrder})
//	registry.MustRegister(saga.StepDefinition{ID: "process_payment", New: newPayment})
//
//	orchestrator := saga.NewOrchestrator(registry, saga.WithFailureLogStore(store)).
//	    AddStep("create_order").
//	    AddStep("process_payment", saga.WithRetries(3), saga.WithDelay(10*time.Second))
//
//	sc, err := orchestrator.Execute(ctx, saga.NewContextFrom(input))
//
// When a step exhausts its attempts, the steps that already succeeded are rolled back
// in reverse order, a FailureLog is appended to the store and the step's error is
// returned unchanged. Rollback failures are recorded in the log and never stop the
// remaining compensations.
package saga
