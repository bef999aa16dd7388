// Package testsuite runs workflows end to end against an in-process
// orchestration service. The service keeps history in memory unless a store
// is given, and the worker polls it directly without a NATS server.
package testsuite
