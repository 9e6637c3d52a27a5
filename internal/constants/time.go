package constants

import "time"

// DefaultApplyTimeout bounds a whole reconcile run when --timeout is not given.
const DefaultApplyTimeout = 15 * time.Minute

// OperationPollInterval is the interval between polls of a long-running
// provider operation (API enablement, function deploys).
const OperationPollInterval = 3 * time.Second

// OperationTimeout is the maximum time to wait for a single long-running
// provider operation to settle.
const OperationTimeout = 10 * time.Minute

// ProviderCallTimeout bounds a single short provider call (reads, policy
// lookups, topic creation). Long-running operations use OperationTimeout.
const ProviderCallTimeout = 30 * time.Second

// SecretLookupTimeout bounds one secret store lookup.
const SecretLookupTimeout = 30 * time.Second

// IAMRetryAttempts is how many times a lost set-policy race is retried before
// the binding is reported as conflicted.
const IAMRetryAttempts = 3

// MaxStageConcurrency is the maximum number of provider operations in flight
// within one reconcile stage.
const MaxStageConcurrency = 8

// TestContextTimeout is the timeout for test contexts.
const TestContextTimeout = 5 * time.Second
