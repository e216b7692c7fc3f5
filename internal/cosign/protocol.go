package cosign

import (
	"fmt"

	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/zeebo/blake3"
)

// MaxPayloadSize bounds a gossiped co-signing payload.
const MaxPayloadSize = 2 << 20

// PayloadTopic returns the GossipSub topic carrying co-signing payloads of
// one network, so mainnet and testnet signers never mix.
func PayloadTopic(network string) string {
	return fmt.Sprintf("/cellwallet/cosign/%s/1.0.0", network)
}

// messageID identifies a gossip message by the blake3 hash of its data, so
// the same payload republished by several signers is delivered once.
func messageID(m *pb.Message) string {
	sum := blake3.Sum256(m.GetData())
	return string(sum[:])
}
