// Package host is the execution environment contracts run in.
//
// Ownership boundary:
// - contract entry-point interfaces and the values they exchange
// - atomic invocations: every top-level call runs on a write cache that is
//   committed only when the whole call tree succeeds
// - sub-message execution and reply routing back to the emitting contract
// - channel handshake state, packet commitments, receipts and the logical clock
//
// A receive that aborts is reverted and answered with an error
// acknowledgement, so a malformed or failing packet never blocks a channel.
package host
