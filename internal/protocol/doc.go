// Package protocol owns the datagram wire contract.
//
// Ownership boundary:
// - header prefix, frequency marker and message id
// - appended acks and zero-coding
// - primitive field encodings
// - descriptor-driven block encode/decode
// - registry and codec entry points
//
// Message layouts live in the catalog package; the template package parses
// the text form they are declared in.
package protocol
