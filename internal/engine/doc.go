// Package engine implements the optimistic mutation orchestrator and the
// appointment creation path of the fieldsync client.
//
// # Execution model
//
// The engine is event-driven and cooperative: UI actions call into it, it
// applies the change to in-memory session state synchronously, and only
// then touches the network or the local store. The caller therefore
// always observes the transition before the call returns, online or not.
//
// Per-appointment serialization is enforced with busy markers: a second
// operation on an appointment whose previous operation is still in flight
// fails fast with ErrBusy, and the UI is expected to disable the control
// while the marker is held. Different appointments may have concurrent
// in-flight operations; there is no cross-appointment lock.
//
// # Connectivity fallback
//
// Each transition builds two representations of the same change: a remote
// change-set (backend field names, absolute values, derived status) and a
// local apply function. Online, the remote write is attempted exactly
// once; a connectivity failure, and only a connectivity failure, falls
// back to the offline path, which persists the optimistic snapshot and
// queues the remote change-set as a PendingMutation for later replay.
// Remote validation failures surface to the caller and are never queued:
// replaying known-bad data cannot succeed.
package engine
