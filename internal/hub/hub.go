package hub

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/devaloi/roomrelay/internal/domain"
	"github.com/devaloi/roomrelay/internal/presence"
	"github.com/devaloi/roomrelay/internal/store"
)

// DefaultFetchLimit is the number of history entries sent with roomHistory.
const DefaultFetchLimit = 50

const lookupTimeout = 2 * time.Second

// UserDirectory resolves display names for the users list.
type UserDirectory interface {
	FindUser(ctx context.Context, username string) (store.User, error)
}

// Options configures a Hub.
type Options struct {
	// Password is the shared secret required by joinGroup.
	Password string
	// FetchLimit caps the entries sent with roomHistory.
	FetchLimit int
	// Users resolves full names. Optional.
	Users  UserDirectory
	Logger *slog.Logger
}

type connectRequest struct {
	client  Client
	claimed string
}

type disconnectRequest struct {
	id string
}

type commandRequest struct {
	id  string
	cmd domain.Command
}

type queryRequest struct {
	fn   func()
	done chan struct{}
}

// Hub owns every session, room subscription and the presence directory. All
// mutation happens on the goroutine running Run.
type Hub struct {
	log        *slog.Logger
	presence   *presence.Directory
	history    store.History
	users      UserDirectory
	password   string
	fetchLimit int

	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	running  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// usersSeq numbers users list snapshots; usersSent is the newest one
	// delivered, so a slow lookup never overwrites a fresher list.
	usersSeq  uint64
	usersMu   sync.Mutex
	usersSent uint64

	now   func() time.Time
	newID func() string
}

// New creates a new Hub.
func New(dir *presence.Directory, hist store.History, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultFetchLimit
	}
	if t, ok := hist.(interface{ OnTrim(func(string)) }); ok {
		t.OnTrim(func(string) { metricHistoryTrimmed.Inc() })
	}
	return &Hub{
		log:        opts.Logger,
		presence:   dir,
		history:    hist,
		users:      opts.Users,
		password:   opts.Password,
		fetchLimit: opts.FetchLimit,
		sessions:   make(map[string]*Session),
		rooms:      make(map[string]map[string]*Session),
		inbox:      make(chan any, 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
	}
}

// Run starts the hub's main event loop. Should be called as a goroutine.
func (h *Hub) Run() {
	h.running.Store(true)
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			return
		default:
		}
		select {
		case req := <-h.inbox:
			h.handle(req)
		case <-h.quit:
			return
		}
	}
}

// Stop signals the hub's event loop to exit and waits for pending users
// list broadcasts.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	if h.running.Load() {
		<-h.done
	}
	h.wg.Wait()
}

// Connect registers a new unauthenticated session. claimed is the username
// from a verified token, or empty.
func (h *Hub) Connect(c Client, claimed string) {
	h.submit(connectRequest{client: c, claimed: claimed})
}

// Disconnect tears down the session of c.
func (h *Hub) Disconnect(c Client) {
	h.submit(disconnectRequest{id: c.ID()})
}

// Dispatch queues an inbound command from c.
func (h *Hub) Dispatch(c Client, cmd domain.Command) {
	h.submit(commandRequest{id: c.ID(), cmd: cmd})
}

// ListRooms returns every room that has members or history.
func (h *Hub) ListRooms() []domain.Room {
	var rooms []domain.Room
	h.query(func() {
		keys := lo.Uniq(append(h.history.Rooms(), lo.Keys(h.rooms)...))
		slices.Sort(keys)
		rooms = lo.Map(keys, func(k string, _ int) domain.Room {
			return domain.Room{
				Key:          k,
				Private:      domain.IsPrivate(k),
				Members:      len(h.rooms[k]),
				MessageCount: h.history.Len(k),
			}
		})
	})
	return rooms
}

// Session returns a snapshot of the session for connection id.
func (h *Hub) Session(id string) (SessionInfo, bool) {
	var (
		info SessionInfo
		ok   bool
	)
	h.query(func() {
		var s *Session
		if s, ok = h.sessions[id]; ok {
			info = s.info()
		}
	})
	return info, ok
}

// Online returns the number of joined users.
func (h *Hub) Online() int {
	return h.presence.Len()
}

func (h *Hub) submit(req any) {
	select {
	case h.inbox <- req:
	case <-h.quit:
	}
}

func (h *Hub) query(fn func()) {
	q := queryRequest{fn: fn, done: make(chan struct{})}
	select {
	case h.inbox <- q:
	case <-h.quit:
		return
	}
	select {
	case <-q.done:
	case <-h.quit:
		// fn may be mid-flight on the loop goroutine.
		if h.running.Load() {
			<-h.done
		}
	}
}

func (h *Hub) handle(req any) {
	switch r := req.(type) {
	case connectRequest:
		h.handleConnect(r)
	case disconnectRequest:
		h.handleDisconnect(r)
	case commandRequest:
		s, ok := h.sessions[r.id]
		if !ok {
			h.log.Debug("command from unknown connection", "conn", r.id)
			return
		}
		h.dispatch(s, r.cmd)
	case queryRequest:
		r.fn()
		close(r.done)
	}
}

func (h *Hub) handleConnect(req connectRequest) {
	id := req.client.ID()
	if _, ok := h.sessions[id]; ok {
		return
	}
	h.sessions[id] = newSession(req.client, req.claimed)
	metricConnections.Inc()
	h.log.Debug("connection opened", "conn", id)
}

func (h *Hub) handleDisconnect(req disconnectRequest) {
	s, ok := h.sessions[req.id]
	if !ok {
		return
	}
	for room := range s.rooms {
		h.unsubscribe(s, room)
	}
	delete(h.sessions, req.id)
	metricConnections.Dec()

	if name, ok := h.presence.Unregister(req.id); ok {
		h.log.Info("user left", "user", name, "conn", req.id)
	}
	metricOnlineUsers.Set(float64(h.presence.Len()))
	h.broadcastUsers()
}

func (h *Hub) dispatch(s *Session, cmd domain.Command) {
	switch c := cmd.(type) {
	case domain.JoinGroup:
		h.joinGroup(s, c)
	case domain.JoinGroupRoom:
		h.switchToGroup(s)
	case domain.OpenPrivate:
		h.openPrivate(s, strings.TrimSpace(c.Target))
	case domain.GetHistory:
		h.getHistory(s, strings.TrimSpace(c.RoomKey))
	case domain.PostText:
		text := strings.TrimSpace(c.Text)
		if text == "" {
			h.drop(s, "empty")
			return
		}
		h.postMessage(s, domain.Entry{Kind: domain.KindText, Text: text})
	case domain.PostVoice:
		if c.Audio == "" {
			h.drop(s, "empty")
			return
		}
		v := c.Voice
		if v.MimeType == "" {
			v.MimeType = domain.DefaultVoiceMime
		}
		if v.Duration < 0 {
			v.Duration = 0
		}
		h.postMessage(s, domain.Entry{Kind: domain.KindVoice, Voice: &v})
	case domain.PostFile:
		if c.URL == "" || c.Name == "" {
			h.drop(s, "empty")
			return
		}
		f := c.File
		if f.Mime == "" {
			f.Mime = domain.DefaultFileMime
		}
		h.postMessage(s, domain.Entry{Kind: domain.KindFile, File: &f})
	case domain.SetTyping:
		h.typing(s, c.IsTyping)
	case domain.RequestUsersList:
		h.broadcastUsers()
	default:
		h.log.Warn("unhandled command", "conn", s.client.ID(), "type", fmt.Sprintf("%T", cmd))
	}
}

// joinGroup authenticates the session and places it in the group room.
func (h *Hub) joinGroup(s *Session, c domain.JoinGroup) {
	if s.joined() {
		h.log.Debug("join on joined session ignored", "conn", s.client.ID(), "user", s.username)
		return
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = s.claimed
	}
	if err := h.checkJoin(name, strings.TrimSpace(c.Password)); err != nil {
		h.rejectJoin(s, name, err)
		return
	}
	if err := h.presence.Register(name, s.client.ID()); err != nil {
		h.rejectJoin(s, name, err)
		return
	}

	s.state = StateJoined
	s.username = name
	metricOnlineUsers.Set(float64(h.presence.Len()))
	h.log.Info("user joined", "user", name, "conn", s.client.ID())

	h.enterRoom(s, domain.GroupKey, domain.GroupLabel)
	h.broadcastUsers()
}

func (h *Hub) checkJoin(name, password string) error {
	if name == "" {
		return domain.ErrNameRequired
	}
	if !domain.ValidName(name) {
		return domain.ErrNameInvalid
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) != 1 {
		return domain.ErrWrongPassword
	}
	return nil
}

func (h *Hub) rejectJoin(s *Session, name string, err error) {
	ae := domain.NewAuthError(err)
	metricJoinFailures.WithLabelValues(ae.Code).Inc()
	h.log.Info("join rejected", "conn", s.client.ID(), "user", name, "code", ae.Code)
	h.send(s, ae)
}

// broadcastUsers sends the online users list to every connection. Full
// names are resolved off the hub goroutine.
func (h *Hub) broadcastUsers() {
	names := h.presence.ListUsernames()
	targets := lo.MapToSlice(h.sessions, func(_ string, s *Session) Client { return s.client })
	h.usersSeq++
	seq := h.usersSeq

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		list := h.resolveNames(names)
		data, err := domain.Encode(list)
		if err != nil {
			h.log.Error("encode users list", "err", err)
			return
		}

		h.usersMu.Lock()
		defer h.usersMu.Unlock()
		if seq < h.usersSent {
			return
		}
		h.usersSent = seq
		for _, c := range targets {
			c.Send(data)
		}
	}()
}

func (h *Hub) resolveNames(names []string) domain.UsersList {
	list := make(domain.UsersList, 0, len(names))
	for _, name := range names {
		u := domain.OnlineUser{Username: name, FullName: name}
		if h.users != nil {
			ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
			if rec, err := h.users.FindUser(ctx, name); err == nil && rec.FullName != "" {
				u.FullName = rec.FullName
			}
			cancel()
		}
		list = append(list, u)
	}
	return list
}

func (h *Hub) send(s *Session, ev domain.Event) {
	data, err := domain.Encode(ev)
	if err != nil {
		h.log.Error("encode event", "event", ev.EventName(), "err", err)
		return
	}
	s.client.Send(data)
}

// drop records a command discarded because its preconditions did not hold.
// The sender is not told.
func (h *Hub) drop(s *Session, reason string) {
	metricDropped.WithLabelValues(reason).Inc()
	h.log.Debug("command dropped",
		"reason", reason,
		"conn", s.client.ID(),
		"user", s.username,
		"room", s.room,
	)
}
