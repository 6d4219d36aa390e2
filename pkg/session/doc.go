/*
Package session persists workflow runs.

A Manager sits between the runtime and a snapshot store. Registered as an
emitter it saves every committed snapshot under its execution ID and appends
lifecycle events when the store keeps an event log; registered as a resolver
it hands the latest snapshot of an execution back to a run that resumes it.

Writes to one execution are serialized by a reference-counted local mutex and,
optionally, a distributed lock so several replicas can share a store.
*/
package session
