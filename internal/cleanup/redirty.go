package cleanup

import (
	"github.com/regia-io/regia/internal/cardq"
	"github.com/regia-io/regia/internal/heap"
	"github.com/regia-io/regia/internal/phases"
)

// redirtyClosure classifies one logged card address: cards in regions that
// will not be freed this pause stay dirty; cards in regions about to be
// freed are dropped, since their memory returns to the free pool.
type redirtyClosure struct {
	ctx        *Context
	numDirtied uint64
}

// willBecomeFree reports whether the region is freed by collection-set
// freeing this pause: a member of the collection set that did not fail
// evacuation.
func (c *redirtyClosure) willBecomeFree(r *heap.Region) bool {
	return r.InCollectionSet() && !c.ctx.EvacFailures.Contains(r.Index())
}

func (c *redirtyClosure) doCardAddr(addr uint64) {
	r := c.ctx.Heap.RegionContaining(addr)
	if !c.willBecomeFree(r) {
		ct := c.ctx.Heap.CardTable()
		ct.MarkDirty(ct.CardFor(addr))
		c.numDirtied++
	}
}

// RedirtyLoggedCardsTask drains the global chain of card buffers logged
// during evacuation. Nodes are claimed via compare-and-swap, so each one is
// processed by exactly one worker with no duplication and no omission.
// Finalize merges all buffers into the shared dirty card queue set for the
// next pause and verifies the working set is empty.
type RedirtyLoggedCardsTask struct {
	ctx     *Context
	claimer *cardq.Claimer
}

// NewRedirtyLoggedCardsTask creates the redirtying subtask over the
// pause's logged buffers.
func NewRedirtyLoggedCardsTask(ctx *Context) *RedirtyLoggedCardsTask {
	return &RedirtyLoggedCardsTask{
		ctx:     ctx,
		claimer: cardq.NewClaimer(ctx.RDCQS.AllCompletedBuffers()),
	}
}

// Phase implements task.SubTask.
func (t *RedirtyLoggedCardsTask) Phase() phases.Phase { return phases.RedirtyCards }

// WorkerCost spreads the drain over the whole pool. Needs more
// investigation.
func (t *RedirtyLoggedCardsTask) WorkerCost() float64 {
	return float64(t.ctx.Phases.NumWorkers())
}

// DoWork implements task.SubTask.
func (t *RedirtyLoggedCardsTask) DoWork(workerID int) {
	cl := &redirtyClosure{ctx: t.ctx}
	for {
		node := t.claimer.Claim()
		if node == nil {
			break
		}
		for _, addr := range node.Cards() {
			cl.doCardAddr(addr)
		}
	}
	t.ctx.Phases.RecordOrAddWorkItem(phases.RedirtyCards, workerID, cl.numDirtied,
		phases.RedirtyNumDirtied)
}

// Finalize hands the buffers to the shared dirty card queue set.
func (t *RedirtyLoggedCardsTask) Finalize() {
	t.ctx.RDCQS.MergeInto(t.ctx.DirtyCards)
	t.ctx.RDCQS.VerifyEmpty()
}
