// Package relayer moves packets, acknowledgements and timeouts between the
// two ends of a channel.
//
// Ownership boundary:
// - channel handshake driven across two peers (init, try, ack, confirm)
// - packet delivery with ack hand-back to the sender
// - timeout proofs judged against the destination clock
// - in-memory outbox of packets awaiting an acknowledgement
//
// A relayer holds no authority. Every decision it forwards is re-checked by
// the chain that receives it.
package relayer
