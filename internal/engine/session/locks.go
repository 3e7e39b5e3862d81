package session

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// KeyedMutex serializes turns for the same session. Two messages arriving
// concurrently for one (user, channel) pair must not race on pending
// slots: a lost update would let a later turn dispatch with stale state.
// Sessions hash onto a fixed set of shards, so unrelated sessions still
// run in parallel.
type KeyedMutex struct {
	shards [lockShards]sync.Mutex
}

// Lock acquires the shard for key and returns the unlock function.
func (k *KeyedMutex) Lock(userID, channelID string) func() {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(channelID))
	shard := &k.shards[h.Sum32()%lockShards]
	shard.Lock()
	return shard.Unlock
}
