package thirdparty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

type sliceQueue struct {
	mu     sync.Mutex
	events []*StandardEvent
	err    error
}

func (q *sliceQueue) Enqueue(_ context.Context, ev *StandardEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

func switchEvent(socket int, on, known bool) hub.OutletEvent {
	return hub.OutletEvent{
		StripID:     "desk",
		Socket:      socket,
		Attr:        ptsp01.AttrSwitch,
		State:       ptsp01.OutletState{Socket: socket, Switch: on},
		SwitchKnown: known,
		Online:      known,
	}
}

func TestNotifierSwitchChanges(t *testing.T) {
	q := &sliceQueue{}
	n := NewNotifier(q, nil)

	n.OnOutletUpdate(switchEvent(1, false, true))
	n.OnOutletUpdate(switchEvent(1, false, true))
	n.OnOutletUpdate(switchEvent(1, true, false))
	n.OnOutletUpdate(switchEvent(1, true, true))
	n.OnOutletUpdate(hub.OutletEvent{StripID: "desk", Socket: 1, Attr: ptsp01.AttrVoltage})

	require.Len(t, q.events, 2)
	assert.Equal(t, EventOutletSwitchChanged, q.events[0].EventType)
	assert.Nil(t, q.events[0].Data["previous"])
	assert.Equal(t, "desk_1", q.events[1].Data["outlet_id"])
	assert.Equal(t, false, q.events[1].Data["previous"])
	assert.Equal(t, true, q.events[1].Data["on"])
}

func TestNotifierAvailability(t *testing.T) {
	q := &sliceQueue{}
	n := NewNotifier(q, nil)

	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk", Host: "10.0.0.7", Version: "12.09", Kind: hub.Online})
	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk", Kind: hub.Offline, Err: errors.New("eof")})
	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk", Kind: hub.AuthFailed})
	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk"})

	require.Len(t, q.events, 3)
	assert.Equal(t, EventStripOnline, q.events[0].EventType)
	assert.Equal(t, "12.09", q.events[0].Data["version"])
	assert.Equal(t, EventStripOffline, q.events[1].EventType)
	assert.Equal(t, "eof", q.events[1].Data["reason"])
	assert.Equal(t, EventStripAuthFailed, q.events[2].EventType)

	// 入队失败只记录日志
	q.err = ErrQueueFull
	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk", Kind: hub.Online})
	assert.Len(t, q.events, 3)
}

func TestMemoryQueueDelivers(t *testing.T) {
	srv := NewMockWebhookServer(t, "secret", 500, 500, 500, 500, 400)
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	q := NewMemoryQueue(fastPusher("secret"), srv.URL+"/hook", 4, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	n := NewNotifier(q, nil)
	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk", Kind: hub.Online}) // 4 次 500
	n.OnAvailability(hub.AvailabilityEvent{StripID: "desk", Kind: hub.Offline}) // 400
	n.OnOutletUpdate(switchEvent(2, true, true))

	require.Eventually(t, func() bool { return len(srv.Events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, EventOutletSwitchChanged, srv.Events()[0].EventType)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookPushes.WithLabelValues("strip.online", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookPushes.WithLabelValues("strip.offline", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookPushes.WithLabelValues("outlet.switch_changed", "ok")))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(fastPusher("s"), "http://127.0.0.1:1/hook", 1, nil, nil)
	ev := NewEvent(EventStripOnline, "desk", time.Time{}, nil)
	require.NoError(t, q.Enqueue(context.Background(), ev))
	assert.ErrorIs(t, q.Enqueue(context.Background(), ev), ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}
