package splitcounter

import (
	"math/rand/v2"
	"sync"

	"golang.org/x/sys/cpu"
)

// shardTokens hands out sticky shard hints. A goroutine that keeps running
// on the same P tends to get the same token back, which keeps its updates
// on one shard without knowing which CPU it runs on.
var shardTokens sync.Pool

type shardToken struct {
	hint uint32
	_    cpu.CacheLinePad
}

// PickShard returns a shard for callers that have no shard identity of
// their own. It is always a valid argument to Add.
func (c *Counter) PickShard() int {
	if len(c.shards) == 0 {
		return 0
	}
	t, ok := shardTokens.Get().(*shardToken)
	if !ok {
		t = &shardToken{hint: rand.Uint32()}
	}
	idx := int(t.hint % uint32(len(c.shards)))
	shardTokens.Put(t)
	return idx
}
