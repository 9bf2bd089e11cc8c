package filestate

import (
	"context"

	"github.com/nbcluster/nbcluster/internal/logger"
	"github.com/nbcluster/nbcluster/pkg/cluster"
)

// BusHandler subscribes to the shared pub-sub topic and applies
// asynchronous cluster events to local mirrors, dispatching break
// requests to the BreakCoordinator. Break requests and evictions are
// handed off via dispatch; data-update events are mirrored inline in the
// subscriber callback, which only takes the per-node state locks.
type BusHandler struct {
	nodeID  string
	topic   cluster.Topic
	facade  *Facade
	breaker *BreakCoordinator

	dispatch    func(func())
	unsubscribe func()
}

// NewBusHandler builds a BusHandler wired to facade's local mirrors and
// breaker's break lifecycle. Call Start to subscribe.
func NewBusHandler(nodeID string, topic cluster.Topic, facade *Facade, breaker *BreakCoordinator) *BusHandler {
	return &BusHandler{
		nodeID:   nodeID,
		topic:    topic,
		facade:   facade,
		breaker:  breaker,
		dispatch: func(f func()) { go f() },
	}
}

// Start subscribes the handler to the topic. Safe to call once.
func (h *BusHandler) Start() {
	if h.topic == nil || h.unsubscribe != nil {
		return
	}
	h.unsubscribe = h.topic.Subscribe(h.onMessage)
}

// Stop unsubscribes from the topic.
func (h *BusHandler) Stop() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
}

func (h *BusHandler) onMessage(msg cluster.Message) {
	switch msg.Kind {
	case MsgOplockBreakRequest:
		h.handleBreakRequest(msg)
	case MsgStateEvicted, MsgStateRemoved:
		if msg.SenderID == h.nodeID {
			return
		}
		h.dispatch(func() { h.facade.evictPerNode(msg.Key) })
	case MsgStateAdded, MsgStateUpdated:
		if msg.SenderID == h.nodeID {
			return
		}
		logger.Debug("filestate mirror event", "kind", msg.Kind, "path", msg.Key)
	case MsgDataUpdateStarted, MsgDataUpdateEnded:
		if msg.SenderID == h.nodeID {
			return
		}
		h.handleDataUpdate(msg)
	case MsgOplockReleased, MsgOplockBreakDone:
		// Consumed directly by Facade.GrantAccessWaitingForBreak's own
		// temporary subscription; nothing to mirror here.
	default:
		logger.Debug("filestate bus: unrecognized message kind", "kind", msg.Kind)
	}
}

func (h *BusHandler) handleBreakRequest(msg cluster.Message) {
	payload, ok := msg.Payload.(BreakRequestPayload)
	if !ok || payload.HolderNode != h.nodeID {
		return
	}
	h.dispatch(func() {
		h.breaker.HandleBreakRequest(context.Background(), msg.Key, payload.ToType)
	})
}

func (h *BusHandler) handleDataUpdate(msg cluster.Message) {
	payload, ok := msg.Payload.(DataUpdatePayload)
	if !ok {
		return
	}
	updating := msg.Kind == MsgDataUpdateStarted
	pn := h.facade.perNodeFor(msg.Key)
	if updating {
		pn.SetDataStatus(DataUpdating)
	} else if pn.GetDataStatus() == DataUpdating {
		pn.SetDataStatus(DataAvailable)
	}
	logger.Debug("filestate data update mirrored", "path", msg.Key, "node", payload.NodeID, "updating", updating)
}
