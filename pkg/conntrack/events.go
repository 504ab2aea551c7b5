package conntrack

import (
	"sync"

	"github.com/palisade/palisade/pkg/commons/metrics"
	"github.com/palisade/palisade/pkg/wire"
)

type eventKind uint8

const (
	eventError eventKind = iota
	eventReconnect
	eventHealth
)

type event struct {
	kind    eventKind
	conn    ConnInfo
	errKind wire.ErrorKind
	healthy bool
}

// notifier decouples callback delivery from the registry lock: publish
// never blocks, a single dispatcher goroutine drains the queue, and a full
// queue drops the notification and counts it.
type notifier struct {
	cb    Callbacks
	ch    chan event
	drops *metrics.Counter
	wg    sync.WaitGroup
	once  sync.Once
}

func newNotifier(cb Callbacks, size int, drops *metrics.Counter) *notifier {
	n := &notifier{
		cb:    cb,
		ch:    make(chan event, size),
		drops: drops,
	}
	n.wg.Add(1)
	go n.dispatch()
	return n
}

func (n *notifier) dispatch() {
	defer n.wg.Done()
	for ev := range n.ch {
		switch ev.kind {
		case eventError:
			if n.cb.OnError != nil {
				n.cb.OnError(ev.conn, ev.errKind)
			}
		case eventReconnect:
			if n.cb.OnReconnect != nil {
				n.cb.OnReconnect(ev.conn)
			}
		case eventHealth:
			if n.cb.OnHealth != nil {
				n.cb.OnHealth(ev.conn, ev.healthy)
			}
		}
	}
}

func (n *notifier) publish(ev event) {
	select {
	case n.ch <- ev:
	default:
		n.drops.Inc()
	}
}

// close stops the dispatcher after the queued events drain. Publishing
// after close is a caller bug; the engine's shutdown flag prevents it.
func (n *notifier) close() {
	n.once.Do(func() {
		close(n.ch)
	})
	n.wg.Wait()
}
