package coherence

import "fmt"

// RemoteDescriptor names the place on a peer where state is mirrored: a
// remote address and the key that grants access to it. It is carried
// through untouched.
type RemoteDescriptor struct {
	Addr uint64 `json:"addr"`
	Key  uint32 `json:"key"`
}

// IsZero reports whether the descriptor is unset.
func (d RemoteDescriptor) IsZero() bool { return d.Addr == 0 && d.Key == 0 }

func (d RemoteDescriptor) String() string {
	return fmt.Sprintf("%#x/%#x", d.Addr, d.Key)
}

// SendType is the kind of a coordination message.
type SendType int

const (
	SendNone SendType = iota
	SendInit
	SendSyncRequest
	SendSyncAck
	SendError
)

var sendNames = [...]string{"none", "init", "sync_request", "sync_ack", "error"}

func (t SendType) String() string {
	if t < 0 || int(t) >= len(sendNames) {
		return fmt.Sprintf("send(%d)", int(t))
	}
	return sendNames[t]
}

// Message is the envelope handed to the transport: what kind of exchange it
// is and where the peer's copy of the state lives.
type Message struct {
	Type   SendType         `json:"type"`
	Remote RemoteDescriptor `json:"remote"`
}
