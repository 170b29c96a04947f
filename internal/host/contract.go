package host

// Contract is the minimal entry-point set every deployed contract exposes.
// Messages are raw JSON; decoding is the contract's concern.
type Contract interface {
	Instantiate(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error)
	Execute(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error)
	Query(deps Deps, env Env, msg []byte) ([]byte, error)
}

// Replier receives completions of sub-messages emitted with a reply mode.
type Replier interface {
	Reply(deps Deps, env Env, reply Reply) (*Response, error)
}

// IBCContract owns a port. PacketReceive has no error return: a receiver
// reports failure through the acknowledgement it sets.
type IBCContract interface {
	Contract
	// ChannelOpen returns the version to use; empty keeps the proposed one.
	ChannelOpen(deps Deps, env Env, msg ChannelOpenMsg) (string, error)
	ChannelConnect(deps Deps, env Env, msg ChannelConnectMsg) (*Response, error)
	ChannelClose(deps Deps, env Env, msg ChannelCloseMsg) (*Response, error)
	PacketReceive(deps Deps, env Env, msg PacketReceiveMsg) *ReceiveResponse
	PacketAck(deps Deps, env Env, msg PacketAckMsg) (*Response, error)
	PacketTimeout(deps Deps, env Env, msg PacketTimeoutMsg) (*Response, error)
}

// ContractInfo is persisted once per instantiated address.
type ContractInfo struct {
	Address string `json:"address"`
	Creator string `json:"creator"`
	Height  uint64 `json:"height"`
	IBCPort string `json:"ibc_port,omitempty"`
}

// ValidAddress accepts lowercase alphanumerics with single '.', '-' or '_'
// separators that neither lead nor trail.
func ValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(addr)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
