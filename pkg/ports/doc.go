/*
Package ports defines the driven ports (interfaces) of the arbor runtime.

These interfaces decouple the scheduler from external implementations, allowing
runs to be observed, persisted and resumed through various backends.

# Key Interfaces

  - Emitter: Receives every committed snapshot and every lifecycle event of a run.
  - Resolver: Rehydrates the state of a previous execution.
  - SnapshotStore: Persists snapshots keyed by execution ID (memory, file, Redis, SQLite).
  - EventLog: Optional append-only event history implemented by some stores.
  - DistributedLocker: Provides distributed locking for concurrent access to an execution.
*/
package ports
