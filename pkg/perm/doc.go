// Package perm decides what an already-identified caller may do.
//
// Decisions layer in a fixed order: the org role gate, then the board role,
// then the board's permission scheme if one is attached. Scheme entries
// override the role defaults; anything a scheme does not mention falls back
// to the defaults, and anything the defaults do not grant is denied. The
// demo organization is read-only for everyone regardless of role.
package perm
