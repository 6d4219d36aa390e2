/*
Package domain contains the core vocabulary shared by every layer of the Arbor runtime.

It defines the values that flow between the graph model, the state container and the
scheduler: state keys and descriptors, triggers, lifecycle events, snapshots and the
workflow error taxonomy. The package is kept pure and free of I/O so that adapters,
emitters and the runtime can all depend on it.

# Key Entities

  - Key: Addresses a value in run state (workflow input, node output, external input or trigger attribute).
  - Descriptor: A lazily evaluated reference resolved against a Reader (usually the run state).
  - Trigger / TriggerType: The external cause of a run, matched by type or subtype.
  - Event: A lifecycle notification carrying trace and span identifiers plus a typed body.
  - Snapshot: An immutable, serializable copy of run state taken after every atomic commit.
  - WorkflowError: A classified failure carrying one of the ErrorCode values.
*/
package domain
