// Package circuit owns the UDP transport boundary above the codec.
//
// Ownership boundary:
// - datagram read loop and per-datagram decode
// - handler dispatch by message name
// - outbound sequence stamping
// - per-peer counters and optional capture
//
// Reliability, resends and ack tracking are out of scope; appended acks are
// decoded and exposed on the header but never acted upon.
package circuit
