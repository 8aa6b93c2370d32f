package thirdparty

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// Queue 事件投递队列
type Queue interface {
	Enqueue(ctx context.Context, ev *StandardEvent) error
}

const enqueueTimeout = 2 * time.Second

// Notifier 将 Hub 事件转换为 webhook 事件。开关事件仅在状态变化时发送。
type Notifier struct {
	queue  Queue
	logger *zap.Logger

	mu       sync.Mutex
	switches map[string]bool // outlet id -> 最近一次已知开关状态
}

// NewNotifier 创建通知订阅者
func NewNotifier(queue Queue, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{queue: queue, logger: logger, switches: make(map[string]bool)}
}

// OnOutletUpdate 实现 hub.Listener
func (n *Notifier) OnOutletUpdate(ev hub.OutletEvent) {
	if ev.Attr != ptsp01.AttrSwitch || !ev.SwitchKnown {
		return
	}
	id := ev.OutletID()
	on := ev.State.Switch

	n.mu.Lock()
	prev, seen := n.switches[id]
	n.switches[id] = on
	n.mu.Unlock()
	if seen && prev == on {
		return
	}

	data := &SwitchChangedData{OutletID: id, Socket: ev.Socket, On: on}
	if seen {
		data.Previous = &prev
	}
	n.emit(NewEvent(EventOutletSwitchChanged, ev.StripID, ev.At, data.ToMap()))
}

// OnAvailability 实现 hub.Listener
func (n *Notifier) OnAvailability(ev hub.AvailabilityEvent) {
	var typ EventType
	switch ev.Kind {
	case hub.Online:
		typ = EventStripOnline
	case hub.Offline:
		typ = EventStripOffline
	case hub.AuthFailed:
		typ = EventStripAuthFailed
	default:
		return
	}
	data := &StripAvailabilityData{Host: ev.Host, Version: ev.Version}
	if ev.Err != nil {
		data.Reason = ev.Err.Error()
	}
	n.emit(NewEvent(typ, ev.StripID, ev.At, data.ToMap()))
}

func (n *Notifier) emit(ev *StandardEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := n.queue.Enqueue(ctx, ev); err != nil {
		n.logger.Warn("enqueue webhook event failed",
			zap.String("event_type", string(ev.EventType)),
			zap.String("strip_id", ev.StripID),
			zap.Error(err))
	}
}
