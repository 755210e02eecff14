package sink

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// SSEBroker fans out published payloads to in-process subscribers, grouped by topic.
type SSEBroker struct {
	mu     sync.Mutex
	topics map[string]map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{topics: make(map[string]map[chan []byte]struct{})}
}

// Publish implements PublishSink. Slow subscribers drop payloads instead of blocking.
func (b *SSEBroker) Publish(_ context.Context, topic string, payload []byte) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new client channel for topic.
func (b *SSEBroker) Subscribe(topic string) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	clients, ok := b.topics[topic]
	if !ok {
		clients = make(map[chan []byte]struct{})
		b.topics[topic] = clients
	}
	clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel and closes it.
func (b *SSEBroker) Unsubscribe(topic string, ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	clients, ok := b.topics[topic]
	if ok {
		if _, found := clients[ch]; found {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(b.topics, topic)
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of clients on topic.
func (b *SSEBroker) Subscribers(topic string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// StreamHandler serves a source's live topics as Server-Sent Events.
type StreamHandler struct {
	broker   *SSEBroker
	prefixes []string
}

// NewStreamHandler constructs a stream handler. Each prefix is joined with
// the requested source to form a subscribed topic ("<prefix>:<source>").
func NewStreamHandler(broker *SSEBroker, prefixes ...string) *StreamHandler {
	return &StreamHandler{broker: broker, prefixes: prefixes}
}

// ServeHTTP handles GET /api/v1/live/stream?source=.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		http.Error(w, "source is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	type subscription struct {
		event string
		topic string
		ch    chan []byte
	}
	merged := make(chan streamMessage, 16)
	subs := make([]subscription, 0, len(h.prefixes))
	for _, prefix := range h.prefixes {
		topic := Topic(prefix, source)
		subs = append(subs, subscription{event: eventName(prefix), topic: topic, ch: h.broker.Subscribe(topic)})
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		for _, sub := range subs {
			h.broker.Unsubscribe(sub.topic, sub.ch)
		}
		wg.Wait()
	}()
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for payload := range sub.ch {
				select {
				case merged <- streamMessage{event: sub.event, payload: payload}:
				case <-done:
					return
				}
			}
		}()
	}

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case msg := <-merged:
			_, _ = w.Write([]byte("event: " + msg.event + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg.payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

type streamMessage struct {
	event   string
	payload []byte
}

// Topic joins a prefix and a source id.
func Topic(prefix, sourceID string) string {
	return prefix + ":" + sourceID
}

// eventName is the prefix's last segment, "panel:raw" -> "raw".
func eventName(prefix string) string {
	if i := strings.LastIndex(prefix, ":"); i >= 0 && i < len(prefix)-1 {
		return prefix[i+1:]
	}
	if prefix == "" {
		return "message"
	}
	return prefix
}
