package chain

import (
	"context"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// FeedState tracks the websocket connection lifecycle.
type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedConnected    FeedState = "connected"
	FeedReconnecting FeedState = "reconnecting"
	FeedFailed       FeedState = "failed"
)

type eventCallback struct {
	id int
	cb func(*Event)
}

type stateCallback struct {
	id int
	cb func(FeedState)
}

// wireEvent is the gateway's firehose frame. Every frame carries the block
// number and log index the event was emitted at.
type wireEvent struct {
	Event       string `json:"event"`
	GameID      uint64 `json:"gameId"`
	Player      string `json:"player,omitempty"`
	SAN         string `json:"san,omitempty"`
	Outcome     uint8  `json:"outcome,omitempty"`
	Winner      string `json:"winner,omitempty"`
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint32 `json:"logIndex"`
}

func (w *wireEvent) decode() *Event {
	return &Event{
		Kind:    EventKind(strings.TrimSpace(w.Event)),
		GameID:  w.GameID,
		Player:  NormalizeAddress(w.Player),
		SAN:     w.SAN,
		Outcome: GameOutcome(w.Outcome),
		Winner:  NormalizeAddress(w.Winner),
		Seq:     Seq{Block: w.BlockNumber, Log: w.LogIndex},
	}
}

// EventFeed is a reconnecting websocket consumer of the gateway's event
// firehose. Callbacks run on the read goroutine, one frame at a time, so
// per-session handlers observe events serially and in delivery order.
type EventFeed struct {
	wsURL string

	conn   *websocket.Conn
	state  FeedState
	stateM sync.RWMutex

	nextID   int
	evCbs    []eventCallback
	stateCbs []stateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

var _ EventStream = (*EventFeed)(nil)

func NewEventFeed(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *EventFeed {
	return &EventFeed{
		wsURL:                wsURL,
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (f *EventFeed) Connect(ctx context.Context) error {
	f.stateM.Lock()
	if f.state == FeedConnected || f.state == FeedConnecting {
		f.stateM.Unlock()
		return nil
	}
	f.stateM.Unlock()

	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	f.setState(FeedConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		f.setState(FeedFailed)
		f.scheduleReconnect()
		return err
	}

	f.conn = conn
	f.setState(FeedConnected)

	f.wg.Add(2)
	go f.listen()
	go f.pingLoop()
	return nil
}

func (f *EventFeed) listen() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if f.conn == nil {
			return
		}
		var frame wireEvent
		if err := wsjson.Read(f.rootCtx, f.conn, &frame); err != nil {
			if f.isStopping() {
				return
			}
			f.setState(FeedDisconnected)
			_ = f.closeConn(websocket.StatusGoingAway, "reconnect")
			f.scheduleReconnect()
			return
		}

		ev := frame.decode()
		f.cbM.RLock()
		callbacks := make([]eventCallback, len(f.evCbs))
		copy(callbacks, f.evCbs)
		f.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.cb != nil {
				entry.cb(ev)
			}
		}
	}
}

func (f *EventFeed) pingLoop() {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			if f.conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := f.conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if f.isStopping() {
						return
					}
					f.setState(FeedDisconnected)
					_ = f.closeConn(websocket.StatusGoingAway, "ping failure")
					f.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (f *EventFeed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 {
		return
	}
	f.setState(FeedReconnecting)

	go func() {
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(f.reconnectDelay * time.Duration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(f.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				continue
			}

			f.conn = conn
			f.setState(FeedConnected)

			f.wg.Add(2)
			go f.listen()
			go f.pingLoop()
			return
		}
		f.setState(FeedFailed)
	}()
}

func (f *EventFeed) OnEvent(cb func(*Event)) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextID++
	f.evCbs = append(f.evCbs, eventCallback{id: f.nextID, cb: cb})
	return f.nextID
}

func (f *EventFeed) RemoveCallback(id int) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	for i, entry := range f.evCbs {
		if entry.id == id {
			f.evCbs = append(f.evCbs[:i], f.evCbs[i+1:]...)
			break
		}
	}
}

func (f *EventFeed) OnStateChange(cb func(FeedState)) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextID++
	f.stateCbs = append(f.stateCbs, stateCallback{id: f.nextID, cb: cb})
	return f.nextID
}

func (f *EventFeed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := make([]stateCallback, len(f.stateCbs))
	copy(callbacks, f.stateCbs)
	f.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.cb != nil {
			entry.cb(state)
		}
	}
}

func (f *EventFeed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

func (f *EventFeed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	_ = f.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if f.rootCancel != nil {
			f.rootCancel()
		}
		return nil
	}
}

func (f *EventFeed) closeConn(code websocket.StatusCode, reason string) error {
	if f.conn == nil {
		return nil
	}
	defer func() { f.conn = nil }()
	return f.conn.Close(code, reason)
}

func (f *EventFeed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}
