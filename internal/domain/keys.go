package domain

import "fmt"

// ChatKey identifies one conversation. Channel messages key on the channel
// index; DMs key on the unordered {from, to} pair restricted to the local
// node, so both directions of a conversation land in the same chat.
type ChatKey struct {
	Channel bool
	Index   int
	Peer    uint32
}

func ChatKeyForChannel(index int) ChatKey {
	return ChatKey{Channel: true, Index: index}
}

func ChatKeyForDM(peer uint32) ChatKey {
	return ChatKey{Peer: peer}
}

// ChatKeyForMessage derives the conversation key of a message as seen from
// the local node myNodeNum.
func ChatKeyForMessage(m Message, myNodeNum uint32) ChatKey {
	if m.IsChannelMessage() {
		idx := 0
		if m.Channel != nil {
			idx = *m.Channel
		}

		return ChatKeyForChannel(idx)
	}
	if m.From == myNodeNum {
		return ChatKeyForDM(m.To)
	}

	return ChatKeyForDM(m.From)
}

// Destination maps the key to wire addressing: channel conversations go to
// the broadcast address on the channel's slot, DMs go straight to the peer.
func (k ChatKey) Destination() (to uint32, channel uint32) {
	if k.Channel {
		return BroadcastNodeNum, uint32(k.Index)
	}

	return k.Peer, 0
}

func (k ChatKey) String() string {
	if k.Channel {
		return fmt.Sprintf("channel:%d", k.Index)
	}

	return fmt.Sprintf("dm:%s", FormatNodeNum(k.Peer))
}

// FormatNodeNum renders a node number in the canonical !hex form.
func FormatNodeNum(num uint32) string {
	if num == 0 {
		return "unknown"
	}

	return fmt.Sprintf("!%08x", num)
}
