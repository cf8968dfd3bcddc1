package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/devaloi/roomrelay/internal/domain"
)

type options struct {
	url      string
	password string
	clients  int
	messages int
	interval time.Duration
	private  bool
}

type stats struct {
	connected atomic.Int64
	joined    atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
	errors    atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func main() {
	var o options
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive a roomrelay server with concurrent websocket clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o)
		},
	}
	cmd.Flags().StringVar(&o.url, "url", "ws://localhost:3000/ws", "WebSocket server URL")
	cmd.Flags().StringVar(&o.password, "password", "123", "shared chat password")
	cmd.Flags().IntVar(&o.clients, "clients", 10, "number of concurrent clients")
	cmd.Flags().IntVar(&o.messages, "messages", 10, "messages per client")
	cmd.Flags().DurationVar(&o.interval, "interval", 10*time.Millisecond, "pause between messages")
	cmd.Flags().BoolVar(&o.private, "private", false, "pair clients up in private rooms instead of the group")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func frame(typ string, data any) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(domain.Frame{Type: typ, Data: raw})
	return b
}

func run(o options) error {
	log.Printf("Load test: %d clients, %d messages each, private=%v", o.clients, o.messages, o.private)

	var (
		st    stats
		wg    sync.WaitGroup
		ready sync.WaitGroup
	)
	ready.Add(o.clients)
	start := time.Now()

	for i := 0; i < o.clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			client(id, o, &st, &ready)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)
	report(&st, elapsed)
	return nil
}

func client(id int, o options, st *stats, ready *sync.WaitGroup) {
	var once sync.Once
	markReady := func() { once.Do(ready.Done) }
	defer markReady()

	user := fmt.Sprintf("user_%d", id)
	conn, _, err := websocket.DefaultDialer.Dial(o.url, nil)
	if err != nil {
		st.errors.Add(1)
		log.Printf("client %d: dial error: %v", id, err)
		return
	}
	defer conn.Close()
	st.connected.Add(1)

	var (
		pendingMu sync.Mutex
		pending   = make(map[string]time.Time)
		joined    = make(chan struct{})
		joinOnce  sync.Once
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			st.received.Add(1)

			f, err := domain.DecodeFrame(data)
			if err != nil {
				continue
			}
			switch f.Type {
			case domain.EvSwitchedRoom:
				joinOnce.Do(func() { close(joined) })
			case domain.EvAuthError:
				log.Printf("client %d: join rejected: %s", id, f.Data)
			case domain.EvMessage:
				var m domain.Entry
				if json.Unmarshal(f.Data, &m) != nil || m.User != user {
					continue
				}
				pendingMu.Lock()
				if t, ok := pending[m.Text]; ok {
					st.observe(time.Since(t))
					delete(pending, m.Text)
				}
				pendingMu.Unlock()
			}
		}
	}()

	conn.WriteMessage(websocket.TextMessage, frame(domain.CmdJoinGroup, map[string]string{"name": user, "password": o.password}))
	select {
	case <-joined:
		st.joined.Add(1)
	case <-time.After(5 * time.Second):
		st.errors.Add(1)
		log.Printf("client %d: join timed out", id)
		return
	}

	// Every client must be online before private rooms can be opened.
	markReady()
	ready.Wait()
	if o.private {
		peer := id ^ 1
		if peer < o.clients {
			conn.WriteMessage(websocket.TextMessage, frame(domain.CmdOpenPrivate, fmt.Sprintf("user_%d", peer)))
			time.Sleep(100 * time.Millisecond)
		}
	}

	for j := 0; j < o.messages; j++ {
		text := fmt.Sprintf("msg %d from %s", j, user)
		pendingMu.Lock()
		pending[text] = time.Now()
		pendingMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, frame(domain.CmdSendMessage, text)); err != nil {
			st.errors.Add(1)
			return
		}
		st.sent.Add(1)
		time.Sleep(o.interval)
	}

	// Wait a bit for remaining messages.
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
}

func report(st *stats, elapsed time.Duration) {
	sort.Slice(st.latencies, func(i, j int) bool { return st.latencies[i] < st.latencies[j] })

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Clients:     %d connected, %d joined\n", st.connected.Load(), st.joined.Load())
	fmt.Printf("Sent:        %d messages\n", st.sent.Load())
	fmt.Printf("Received:    %d frames\n", st.received.Load())
	fmt.Printf("Errors:      %d\n", st.errors.Load())
	if len(st.latencies) > 0 {
		fmt.Printf("Delivered:   %d of own messages echoed\n", len(st.latencies))
		fmt.Printf("Latency p50: %s\n", percentile(st.latencies, 50))
		fmt.Printf("Latency p95: %s\n", percentile(st.latencies, 95))
		fmt.Printf("Latency p99: %s\n", percentile(st.latencies, 99))
	}
	fmt.Printf("Throughput:  %.0f msgs/sec\n", float64(st.sent.Load())/elapsed.Seconds())
	fmt.Println(strings.Repeat("=", 25))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
