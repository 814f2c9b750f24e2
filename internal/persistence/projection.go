package persistence

import (
	"context"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
)

// StartNodeProjection subscribes to decoded node snapshots and funnels them
// into the node directory through the writer queue, keeping repo writes off
// the decode path.
func StartNodeProjection(ctx context.Context, b bus.MessageBus, queue *WriterQueue, nodes *NodeRepo) {
	sub := b.Subscribe(events.TopicNodeInfo)
	go func() {
		defer b.Unsubscribe(sub, events.TopicNodeInfo)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				n, ok := raw.(domain.NodeInfo)
				if !ok {
					continue
				}
				queue.Enqueue("upsert_node", func(writeCtx context.Context) error {
					return nodes.Upsert(writeCtx, n)
				})
			}
		}
	}()
}
