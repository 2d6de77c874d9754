// Package model defines the canonical internal data model for the
// fieldsync engine: appointments, companies, schedule snapshots, and the
// pending records (appointments, mutations, media) that encode
// not-yet-synchronized local state.
//
// # Identity
//
// An appointment carries either a remote-issued identifier or a locally
// generated one. Local identifiers are UUIDv7 strings prefixed with
// "local-" so they are distinguishable everywhere without extra
// bookkeeping. A record whose identifier is local MUST NOT be assumed to
// exist on the remote backend.
//
// # Decode boundary
//
// Remote payloads arrive in one of two shapes (a legacy Portuguese-named
// schema and the current one). DecodeAppointment performs the tagged-union
// decode exactly once at the remote boundary; everything past that point
// operates on the canonical structs in this package and never
// shape-sniffs.
package model
