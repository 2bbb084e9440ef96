// Package keys provides signers for the data item signature schemes that
// have a verifier, plus deterministic seed helpers for Ed25519 keys.
//
// Signers are used to build bundles (tests, the pack command). Verification
// lives in package scheme.
package keys
