package application

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

const eventBufferSize = 64

// EventType ...
type EventType int

const (
	// EventBlockApplied is published for every block applied by the sync.
	EventBlockApplied EventType = iota
	// EventReorg is published when the wallet state is rolled back to a fork
	// point.
	EventReorg
	// EventOutputReceived is published for every new wallet output.
	EventOutputReceived
	// EventTxBroadcasted is published once a transaction reached the network.
	EventTxBroadcasted
	// EventTxBroadcastPending is published when the outcome of a broadcast is
	// unknown.
	EventTxBroadcastPending
	// EventTxFailed is published when a pending transaction got definitely
	// rejected.
	EventTxFailed
	// EventSyncStalled is published when the sync exhausted its retries.
	EventSyncStalled
	// EventSyncCorrupt is published when the data source returned data that
	// requires a rescan.
	EventSyncCorrupt
)

func (t EventType) String() string {
	switch t {
	case EventBlockApplied:
		return "BLOCK_APPLIED"
	case EventReorg:
		return "REORG"
	case EventOutputReceived:
		return "OUTPUT_RECEIVED"
	case EventTxBroadcasted:
		return "TX_BROADCASTED"
	case EventTxBroadcastPending:
		return "TX_BROADCAST_PENDING"
	case EventTxFailed:
		return "TX_FAILED"
	case EventSyncStalled:
		return "SYNC_STALLED"
	case EventSyncCorrupt:
		return "SYNC_CORRUPT"
	default:
		return "UNKNOWN"
	}
}

// Event is a notification about a change of the wallet state.
type Event struct {
	Type    EventType
	Height  uint32
	TxID    string
	Output  *domain.Output
	Balance domain.Balance
}

type listeners struct {
	mu        *sync.RWMutex
	listeners map[chan Event]int
	index     int
	closed    bool
}

func newListeners() *listeners {
	return &listeners{
		mu:        &sync.RWMutex{},
		listeners: make(map[chan Event]int),
	}
}

// add returns a new buffered channel receiving all the broadcasted events
// and the func to unsubscribe it.
func (l *listeners) add() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, eventBufferSize)
	if l.closed {
		close(ch)
		return ch, func() {}
	}
	l.listeners[ch] = l.index
	l.index++

	once := &sync.Once{}
	return ch, func() {
		once.Do(func() { l.remove([]chan Event{ch}) })
	}
}

// broadcast sends the event to all listeners without blocking. Listeners
// that are not keeping up are dropped.
func (l *listeners) broadcast(event Event) {
	l.mu.RLock()
	listenersToRemove := make([]chan Event, 0)
	chIds := make([]int, 0)
	for ch, id := range l.listeners {
		select {
		case ch <- event:
		default:
			listenersToRemove = append(listenersToRemove, ch)
			chIds = append(chIds, id)
		}
	}
	l.mu.RUnlock()

	if len(listenersToRemove) > 0 {
		l.remove(listenersToRemove)
		log.WithFields(log.Fields{
			"ids":   chIds,
			"event": event.Type,
		}).Warn("failed to send event to one or more listeners, they've been removed")
	}
}

func (l *listeners) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ch := range l.listeners {
		close(ch)
	}
	l.listeners = make(map[chan Event]int)
	l.closed = true
}

func (l *listeners) remove(chs []chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range chs {
		if _, ok := l.listeners[ch]; !ok {
			continue
		}
		close(ch)
		delete(l.listeners, ch)
	}
}
