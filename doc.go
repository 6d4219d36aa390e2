/*
Package arbor runs workflows declared as graphs of nodes connected by
conditional ports.

A workflow is built once from a declaration (a node, a port, a graph or a set
of those, see package graph) and can then be run any number of times. Every
run executes ready nodes concurrently, commits their outputs atomically to a
shared state and reports its progress as a stream of lifecycle events.

A run ends in exactly one of three states:

  - fulfilled: no node is left to run and every workflow output resolved.
  - rejected: a node failed, the run was cancelled or it timed out.
  - paused: a node awaits external inputs. Supplying them through
    WithExternalInputs, together with WithPreviousExecution or WithSnapshot,
    resumes the run.

Persistence and observability plug in as emitters and resolvers: see packages
session, observability and the snapshot store adapters.
*/
package arbor
