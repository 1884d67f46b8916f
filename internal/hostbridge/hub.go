package hostbridge

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/splittermond/internal/game/combat"
	"github.com/cory-johannsen/splittermond/internal/game/status"
	"github.com/cory-johannsen/splittermond/internal/game/tickbar"
	"github.com/cory-johannsen/splittermond/internal/notify"
)

// Frame types pushed to feed clients.
const (
	FrameTickBar = "tickbar"
	FrameChat    = "chat"
	FramePrompt  = "prompt"
	FrameEnded   = "combat_ended"
	FrameError   = "error"
)

// Command actions accepted from feed clients.
const (
	ActionView         = "view"
	ActionStepForward  = "step_forward"
	ActionStepBackward = "step_backward"
	ActionTickDelta    = "tick_delta"
)

const (
	maxMessageSize = 1024
	sendBuffer     = 64
)

// Frame is one message pushed to a feed client.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Command is one message received from a feed client.
type Command struct {
	Action   string `json:"action"`
	CombatID string `json:"combat_id,omitempty"`
	PromptID string `json:"prompt_id,omitempty"`
	// Delta answers a prompt; nil dismisses it.
	Delta *int `json:"delta,omitempty"`
}

// Prompt asks a client how many ticks the acting combatant's action costs.
type Prompt struct {
	PromptID    string `json:"prompt_id"`
	CombatID    string `json:"combat_id"`
	CombatantID string `json:"combatant_id"`
	Name        string `json:"name"`
}

// Source supplies combat snapshots to the feed.
type Source interface {
	Snapshot(ctx context.Context, id string) (*combat.Combat, error)
}

// HubConfig bundles the collaborators of a Hub.
type HubConfig struct {
	Definitions *status.Registry
	Hooks       status.HookRunner
	Localizer   status.Localizer
	// Sink receives every status notification in addition to the feed.
	Sink          notify.Sink
	Horizon       status.Horizon
	ViewportTicks int
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	PromptTimeout time.Duration
	Logger        *zap.Logger
}

// Hub is the websocket live feed. It observes combat changes, renders one
// tick-bar context per client, runs one status watcher per user and routes
// tick prompts to the acting combatant's owner.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	srcMu  sync.RWMutex
	source Source

	mu      sync.RWMutex
	clients map[string]*feedClient

	watchMu  sync.Mutex
	watchers map[string]*userWatcher
	claims   *status.Claims

	promptMu sync.Mutex
	prompts  map[string]chan *int
}

// userWatcher is the status watcher shared by every connection of one user.
type userWatcher struct {
	watcher *status.Watcher
	conns   int
}

// NewHub creates a Hub. Bind must be called before clients connect.
//
// Precondition: cfg.Localizer and cfg.Logger must be non-nil.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Definitions == nil {
		cfg.Definitions = status.NewRegistry()
	}
	if cfg.ViewportTicks < 1 {
		cfg.ViewportTicks = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = 2 * time.Minute
	}
	return &Hub{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:  make(map[string]*feedClient),
		watchers: make(map[string]*userWatcher),
		claims:   status.NewClaims(),
		prompts:  make(map[string]chan *int),
	}
}

// Bind sets the snapshot source.
func (h *Hub) Bind(src Source) {
	h.srcMu.Lock()
	defer h.srcMu.Unlock()
	h.source = src
}

func (h *Hub) snapshot(ctx context.Context, id string) (*combat.Combat, error) {
	h.srcMu.RLock()
	src := h.source
	h.srcMu.RUnlock()
	if src == nil {
		return nil, combat.ErrCombatNotFound
	}
	return src.Snapshot(ctx, id)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// feedClient is one websocket connection.
type feedClient struct {
	id      string
	userID  string
	gm      bool
	conn    *websocket.Conn
	send    chan Frame
	viewer  *tickbar.Viewer

	mu       sync.Mutex
	combatID string
}

func (fc *feedClient) viewing() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.combatID
}

func (fc *feedClient) view(id string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.combatID = id
}

// follow adopts id as the viewed combat when none is set and reports whether
// the client is viewing id.
func (fc *feedClient) follow(id string) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.combatID == "" {
		fc.combatID = id
	}
	return fc.combatID == id
}

// ServeHTTP upgrades the request to a feed connection. The user_id query
// parameter identifies the user; gm=true makes the connection act for
// combatants without owners.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	q := r.URL.Query()
	fc := &feedClient{
		id:     uuid.NewString(),
		userID: q.Get("user_id"),
		gm:     q.Get("gm") == "true",
		conn:   conn,
		send:   make(chan Frame, sendBuffer),
		viewer: tickbar.NewViewer(h.cfg.ViewportTicks),
	}
	h.acquireWatcher(fc)
	h.register(fc)
	if id := q.Get("combat_id"); id != "" {
		h.handle(r.Context(), fc, Command{Action: ActionView, CombatID: id})
	}
	go h.writePump(fc)
	h.readPump(fc)
}

func watcherKey(fc *feedClient) string {
	if fc.gm {
		return fc.userID + "\x00gm"
	}
	return fc.userID
}

// acquireWatcher attaches fc to its user's watcher, creating it on the first
// connection.
func (h *Hub) acquireWatcher(fc *feedClient) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	key := watcherKey(fc)
	uw, ok := h.watchers[key]
	if !ok {
		sinks := notify.FanOut{h}
		if h.cfg.Sink != nil {
			sinks = append(sinks, h.cfg.Sink)
		}
		opts := []status.WatcherOption{
			status.WithDefinitions(h.cfg.Definitions),
			status.WithClaims(h.claims),
		}
		if h.cfg.Hooks != nil {
			opts = append(opts, status.WithHooks(h.cfg.Hooks))
		}
		if fc.gm {
			opts = append(opts, status.AsGameMaster())
		}
		uw = &userWatcher{watcher: status.NewWatcher(fc.userID, h.cfg.Localizer, sinks, h.logger, opts...)}
		h.watchers[key] = uw
	}
	uw.conns++
}

// releaseWatcher drops the user's watcher with its last connection.
func (h *Hub) releaseWatcher(fc *feedClient) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	key := watcherKey(fc)
	uw, ok := h.watchers[key]
	if !ok {
		return
	}
	if uw.conns--; uw.conns <= 0 {
		delete(h.watchers, key)
	}
}

func (h *Hub) activeWatchers() []*status.Watcher {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	out := make([]*status.Watcher, 0, len(h.watchers))
	for _, uw := range h.watchers {
		out = append(out, uw.watcher)
	}
	return out
}

func (h *Hub) register(fc *feedClient) {
	h.mu.Lock()
	h.clients[fc.id] = fc
	h.mu.Unlock()
	h.logger.Info("feed client connected",
		zap.String("client_id", fc.id),
		zap.String("user_id", fc.userID),
		zap.Bool("gm", fc.gm),
	)
}

func (h *Hub) unregister(fc *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[fc.id]
	if ok {
		delete(h.clients, fc.id)
		close(fc.send)
	}
	h.mu.Unlock()
	if ok {
		h.releaseWatcher(fc)
	}
	h.logger.Info("feed client disconnected", zap.String("client_id", fc.id))
}

// push enqueues f without blocking. Callers hold h.mu for reading.
func (h *Hub) push(fc *feedClient, f Frame) {
	select {
	case fc.send <- f:
	default:
		h.logger.Warn("feed client lagging, frame dropped",
			zap.String("client_id", fc.id),
			zap.String("type", f.Type),
		)
	}
}

func (h *Hub) pushTo(fc *feedClient, f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[fc.id]; ok {
		h.push(fc, f)
	}
}

func (h *Hub) readPump(fc *feedClient) {
	defer func() {
		h.unregister(fc)
		_ = fc.conn.Close()
	}()

	pongWait := 2 * h.cfg.PingInterval
	fc.conn.SetReadLimit(maxMessageSize)
	_ = fc.conn.SetReadDeadline(time.Now().Add(pongWait))
	fc.conn.SetPongHandler(func(string) error {
		return fc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := fc.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("feed read failed", zap.String("client_id", fc.id), zap.Error(err))
			}
			return
		}
		h.handle(context.Background(), fc, cmd)
	}
}

func (h *Hub) writePump(fc *feedClient) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = fc.conn.Close()
	}()

	for {
		select {
		case f, ok := <-fc.send:
			_ = fc.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = fc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := fc.conn.WriteJSON(f); err != nil {
				h.logger.Debug("feed write failed", zap.String("client_id", fc.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = fc.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := fc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handle(ctx context.Context, fc *feedClient, cmd Command) {
	switch cmd.Action {
	case ActionView:
		fc.view(cmd.CombatID)
		h.render(ctx, fc, nil)
	case ActionStepForward:
		h.render(ctx, fc, fc.viewer.StepForward)
	case ActionStepBackward:
		h.render(ctx, fc, fc.viewer.StepBackward)
	case ActionTickDelta:
		h.answer(cmd.PromptID, cmd.Delta)
	default:
		h.pushTo(fc, Frame{Type: FrameError, Payload: "unknown action " + cmd.Action})
	}
}

// render sends the viewed combat's tick bar to fc. step, when set, moves the
// cursor after syncing it to the latest state.
func (h *Hub) render(ctx context.Context, fc *feedClient, step func() int) {
	id := fc.viewing()
	if id == "" {
		return
	}
	c, err := h.snapshot(ctx, id)
	if err != nil {
		h.pushTo(fc, Frame{Type: FrameError, Payload: err.Error()})
		return
	}
	tctx, s := tickbar.Compose(c, h.cfg.Horizon, fc.viewer)
	if step != nil {
		tctx = tickbar.Build(c, s, step())
	}
	h.pushTo(fc, Frame{Type: FrameTickBar, Payload: tctx})
}

// CombatChanged implements combat.Observer. Every user's watcher observes the
// new state once, however many connections the user has open.
func (h *Hub) CombatChanged(c *combat.Combat) {
	s := status.Build(c, h.cfg.Horizon)

	h.mu.RLock()
	for _, fc := range h.clients {
		if fc.follow(c.ID) {
			viewed := fc.viewer.Sync(c.ID, s.CurrentTick, s.MaxTick)
			h.push(fc, Frame{Type: FrameTickBar, Payload: tickbar.Build(c, s, viewed)})
		}
	}
	h.mu.RUnlock()

	if !c.Started {
		return
	}
	for _, w := range h.activeWatchers() {
		w.Observe(context.Background(), s)
	}
}

// RoundAdvanced implements combat.Observer. The tracker reports the same
// state through CombatChanged, which already refreshed every client.
func (h *Hub) RoundAdvanced(*combat.Combat) {}

// CombatEnded implements combat.Observer.
func (h *Hub) CombatEnded(id, sceneID string) {
	for _, w := range h.activeWatchers() {
		w.Forget(id)
	}
	h.claims.Release(id)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fc := range h.clients {
		if fc.viewing() == id {
			fc.view("")
			h.push(fc, Frame{Type: FrameEnded, Payload: map[string]string{"combat_id": id, "scene_id": sceneID}})
		}
	}
}

// Send implements notify.Sink by broadcasting msg to every client.
func (h *Hub) Send(_ context.Context, msg notify.ChatMessage) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fc := range h.clients {
		h.push(fc, Frame{Type: FrameChat, Payload: msg})
	}
	return nil
}

// AskTickDelta implements combat.TickPrompt. The prompt goes to a client of
// one of the acting combatant's owners, or to a game master client when no
// owner is connected. Without any such client the prompt counts as dismissed.
func (h *Hub) AskTickDelta(ctx context.Context, c *combat.Combat, acting *combat.Combatant) (int, bool, error) {
	fc := h.promptTarget(acting)
	if fc == nil {
		return 0, false, nil
	}

	pid := uuid.NewString()
	reply := make(chan *int, 1)
	h.promptMu.Lock()
	h.prompts[pid] = reply
	h.promptMu.Unlock()
	defer func() {
		h.promptMu.Lock()
		delete(h.prompts, pid)
		h.promptMu.Unlock()
	}()

	h.pushTo(fc, Frame{Type: FramePrompt, Payload: Prompt{
		PromptID:    pid,
		CombatID:    c.ID,
		CombatantID: acting.ID,
		Name:        acting.Actor.Name,
	}})

	timer := time.NewTimer(h.cfg.PromptTimeout)
	defer timer.Stop()
	select {
	case d := <-reply:
		if d == nil {
			return 0, false, combat.ErrPromptCancelled
		}
		return *d, true, nil
	case <-timer.C:
		return 0, false, combat.ErrPromptCancelled
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

func (h *Hub) promptTarget(acting *combat.Combatant) *feedClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var gm *feedClient
	for _, fc := range h.clients {
		if fc.userID != "" && slices.Contains(acting.Actor.OwnerIDs, fc.userID) {
			return fc
		}
		if fc.gm && gm == nil {
			gm = fc
		}
	}
	return gm
}

func (h *Hub) answer(promptID string, delta *int) {
	h.promptMu.Lock()
	reply, ok := h.prompts[promptID]
	h.promptMu.Unlock()
	if !ok {
		return
	}
	select {
	case reply <- delta:
	default:
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fc := range h.clients {
		_ = fc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = fc.conn.Close()
	}
}
