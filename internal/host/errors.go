package host

import "errors"

var (
	ErrInvalidAddress       = errors.New("host: invalid contract address")
	ErrContractExists       = errors.New("host: contract already exists")
	ErrContractNotFound     = errors.New("host: contract not found")
	ErrNotIBCContract       = errors.New("host: contract does not expose ibc entry points")
	ErrNoReplyHandler       = errors.New("host: contract does not handle replies")
	ErrUnsupportedMsg       = errors.New("host: unsupported message")
	ErrCallDepth            = errors.New("host: call depth exceeded")
	ErrChannelNotFound      = errors.New("host: channel not found")
	ErrChannelState         = errors.New("host: channel in wrong state")
	ErrChannelOwner         = errors.New("host: channel not owned by sender")
	ErrCounterpartyMismatch = errors.New("host: counterparty mismatch")
	ErrPacketNotFound       = errors.New("host: packet commitment not found")
	ErrPacketMismatch       = errors.New("host: packet does not match commitment")
	ErrPacketTimedOut       = errors.New("host: packet timed out")
	ErrPacketNotTimedOut    = errors.New("host: packet has not timed out")
)
