// Package model defines stable boundary types for API layers.
//
// Bundle bytes and item identifiers are unaffected by any projection. These
// structs are the only types intended for direct JSON or CBOR serialization by
// consumers: the per-item records written next to extracted payloads and the
// reports printed by the CLI.
package model
