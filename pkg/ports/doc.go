/*
Package ports defines the driven ports (interfaces) for the run orchestrator.

These interfaces decouple the core logic from external implementations, allowing
the step runner and the state store to work with various storage backends.

# Key Interfaces

  - RunStore: Responsible for persisting and loading run documents.
  - Locker: Provides cooperative locking for store bootstrap.
  - AuditSink: Receives append-only audit events.

RunStoreContract is a reusable test suite every RunStore adapter runs.
*/
package ports
