package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wricardo/sessionrelay/game/authority"
	"github.com/wricardo/sessionrelay/game/metrics"
	"github.com/wricardo/sessionrelay/game/protocol"
	"github.com/wricardo/sessionrelay/game/registry"
	"github.com/wricardo/sessionrelay/game/state"
)

var (
	ErrNilPeer        = errors.New("peer is nil")
	ErrPlayerNotFound = errors.New("player not found")
	ErrEntityNotFound = errors.New("entity not found")
)

var _ RelayService = (*Relay)(nil)

// Relay wires the registry, store and authority tracker together and fans
// every change out to all live connections.
type Relay struct {
	store     *state.Store
	registry  *registry.Registry
	authority *authority.Tracker
	metrics   *metrics.RelayMetrics
	log       *zap.Logger

	// seq is held from a store mutation until its frames are queued, so
	// every peer receives events in the order the store applied them.
	// Sends never block, so holding it across fan-out is safe.
	seq sync.Mutex
}

// NewRelay creates an empty session relay
func NewRelay(log *zap.Logger, m *metrics.RelayMetrics) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	reg := registry.New()
	return &Relay{
		store:     state.NewStore(),
		registry:  reg,
		authority: authority.NewTracker(reg),
		metrics:   m,
		log:       log,
	}
}

// Metrics returns the relay's counters
func (r *Relay) Metrics() *metrics.RelayMetrics {
	return r.metrics
}

// Connect admits a new connection: it gets an id, a default player record,
// authority if nobody holds it, and a welcome frame with the full session.
func (r *Relay) Connect(peer registry.Peer) (string, error) {
	if peer == nil {
		return "", ErrNilPeer
	}

	r.seq.Lock()
	defer r.seq.Unlock()

	id := r.registry.Register(peer)
	r.store.AddPlayer(id)
	r.authority.OnConnect(id)
	isFirst := r.authority.IsAuthority(id)

	welcome, err := protocol.Encode(protocol.NewWelcome(id, r.store.Snapshot(), isFirst))
	if err != nil {
		r.disconnectLocked(id)
		return "", err
	}
	r.send(id, peer, welcome)
	r.metrics.ConnectionsOpened.Add(1)

	r.log.Info("connection opened",
		zap.String("player_id", id),
		zap.Bool("authority", isFirst),
		zap.Int("connections", r.registry.Count()))
	return id, nil
}

// HandleFrame routes one inbound frame from connID. A frame that fails to
// parse is logged and dropped; the connection stays open.
func (r *Relay) HandleFrame(connID string, frame []byte) {
	msg, err := protocol.Parse(frame)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			r.metrics.FramesUnknown.Add(1)
			r.log.Debug("ignoring frame", zap.String("player_id", connID), zap.Error(err))
			return
		}
		r.metrics.FramesMalformed.Add(1)
		r.log.Warn("error processing message", zap.String("player_id", connID), zap.Error(err))
		return
	}

	if _, live := r.registry.Get(connID); !live {
		r.log.Debug("frame from closed connection", zap.String("player_id", connID))
		return
	}
	r.metrics.FramesHandled.Add(1)
	r.log.Debug("new message", zap.String("player_id", connID), zap.String("type", msg.MessageType()))

	switch m := msg.(type) {
	case protocol.Username:
		r.handleUsername(connID, m)
	case protocol.Update:
		r.handleUpdate(connID, m)
	case protocol.CreateEntity:
		r.handleCreateEntity(connID, m)
	case protocol.UpdateEntity:
		r.handleUpdateEntity(connID, m)
	case protocol.DeleteEntity:
		r.handleDeleteEntity(connID, m)
	}
}

// Disconnect tears down connID. It is safe to call more than once.
func (r *Relay) Disconnect(connID string) {
	r.seq.Lock()
	defer r.seq.Unlock()
	r.disconnectLocked(connID)
}

// BroadcastSync sends the full player map to every live connection
func (r *Relay) BroadcastSync() {
	r.seq.Lock()
	defer r.seq.Unlock()
	r.broadcastSyncLocked()
}

// BroadcastJoinLeave announces playerID joining or leaving under its
// current username. Players without a username are never announced.
func (r *Relay) BroadcastJoinLeave(playerID, action string) bool {
	r.seq.Lock()
	defer r.seq.Unlock()

	player, ok := r.store.Player(playerID)
	if !ok || player.Username == "" {
		return false
	}
	r.broadcast(protocol.NewJoinLeave(playerID, action, player.Username))
	return true
}

// BroadcastEntityEvent sends an entity_update carrying e, or an
// entity_delete naming e.ID, to every live connection
func (r *Relay) BroadcastEntityEvent(kind string, e state.EntityState) {
	r.seq.Lock()
	defer r.seq.Unlock()
	r.broadcastEntityLocked(kind, e)
}

func (r *Relay) handleUsername(connID string, m protocol.Username) {
	r.seq.Lock()
	defer r.seq.Unlock()

	player, ok := r.store.Player(connID)
	if !ok {
		return
	}

	if strings.TrimSpace(m.Username) == "" {
		if player.Username == "" {
			r.rejectLocked(connID)
		}
		return
	}

	if r.store.SetUsername(connID, m.Username) {
		r.log.Info("player joined", zap.String("player_id", connID), zap.String("username", m.Username))
		r.broadcast(protocol.NewJoinLeave(connID, protocol.ActionJoined, m.Username))
	}
	r.broadcastSyncLocked()
}

func (r *Relay) handleUpdate(connID string, m protocol.Update) {
	r.seq.Lock()
	defer r.seq.Unlock()

	// Only live connections get player records
	if _, live := r.registry.Get(m.PlayerID); !live {
		r.log.Debug("update for unknown connection",
			zap.String("player_id", m.PlayerID), zap.String("sender", connID))
		return
	}
	r.store.UpdatePlayer(m.PlayerID, m.Position, m.Rotation)
	r.log.Debug("player updated",
		zap.String("player_id", m.PlayerID),
		zap.String("sender", connID),
		zap.Float64s("position", []float64{m.Position.X, m.Position.Y, m.Position.Z}),
		zap.Float64("rotation", m.Rotation))
	r.broadcastSyncLocked()
}

func (r *Relay) handleCreateEntity(connID string, m protocol.CreateEntity) {
	r.seq.Lock()
	defer r.seq.Unlock()

	if !r.authorizedLocked(connID, protocol.TypeCreateEntity) {
		return
	}
	e := r.store.CreateEntity(m.Data)
	r.log.Debug("entity created", zap.String("entity_id", e.ID), zap.String("player_id", connID))
	r.broadcastEntityLocked(protocol.TypeEntityUpdate, e)
}

func (r *Relay) handleUpdateEntity(connID string, m protocol.UpdateEntity) {
	r.seq.Lock()
	defer r.seq.Unlock()

	if !r.authorizedLocked(connID, protocol.TypeUpdateEntity) {
		return
	}
	e, ok := r.store.UpdateEntity(m.EntityID, m.Data)
	if !ok {
		r.log.Debug("update for unknown entity", zap.String("entity_id", m.EntityID))
		return
	}
	r.broadcastEntityLocked(protocol.TypeEntityUpdate, e)
}

func (r *Relay) handleDeleteEntity(connID string, m protocol.DeleteEntity) {
	r.seq.Lock()
	defer r.seq.Unlock()

	if !r.authorizedLocked(connID, protocol.TypeDeleteEntity) {
		return
	}
	if !r.store.DeleteEntity(m.EntityID) {
		r.log.Debug("delete for unknown entity", zap.String("entity_id", m.EntityID))
		return
	}
	r.log.Debug("entity deleted", zap.String("entity_id", m.EntityID), zap.String("player_id", connID))
	r.broadcastEntityLocked(protocol.TypeEntityDelete, state.EntityState{ID: m.EntityID})
}

// authorizedLocked reports whether connID may mutate entities. Frames from
// anyone else are dropped without telling the sender.
func (r *Relay) authorizedLocked(connID, msgType string) bool {
	if r.authority.IsAuthority(connID) {
		return true
	}
	r.metrics.UnauthorizedDrops.Add(1)
	r.log.Debug("dropping entity mutation from non-authority",
		zap.String("player_id", connID), zap.String("type", msgType))
	return false
}

// rejectLocked refuses a join without a username. Only the offending
// connection is told and closed.
func (r *Relay) rejectLocked(connID string) {
	r.metrics.AdmissionRejected.Add(1)
	r.log.Warn("player attempted to join without a username, closing connection",
		zap.String("player_id", connID))

	peer, ok := r.registry.Get(connID)
	if !ok {
		return
	}
	if data, err := protocol.Encode(protocol.NewError(protocol.UsernameRequired)); err == nil {
		r.send(connID, peer, data)
	}
	peer.Close()
	r.disconnectLocked(connID)
}

func (r *Relay) disconnectLocked(connID string) {
	if !r.registry.Unregister(connID) {
		return
	}

	player, had := r.store.Player(connID)
	r.store.RemovePlayer(connID)

	if successor, changed := r.authority.OnDisconnect(connID); changed && successor != "" {
		r.metrics.AuthorityElections.Add(1)
		r.log.Info("authority reassigned", zap.String("from", connID), zap.String("to", successor))
	}

	if had && player.Username != "" {
		r.broadcast(protocol.NewJoinLeave(connID, protocol.ActionLeft, player.Username))
	}
	r.broadcastSyncLocked()
	r.metrics.ConnectionsClosed.Add(1)

	r.log.Info("player has disconnected",
		zap.String("player_id", connID),
		zap.Int("connections", r.registry.Count()))
}

func (r *Relay) broadcastSyncLocked() {
	r.broadcast(protocol.NewSync(r.store.Players()))
}

func (r *Relay) broadcastEntityLocked(kind string, e state.EntityState) {
	switch kind {
	case protocol.TypeEntityDelete:
		r.broadcast(protocol.NewEntityDelete(e.ID))
	default:
		r.broadcast(protocol.NewEntityUpdate(e))
	}
}

// broadcast encodes frame once and queues it to every live connection.
// A peer that cannot take the frame is closed and skipped.
func (r *Relay) broadcast(frame any) {
	data, err := protocol.Encode(frame)
	if err != nil {
		r.log.Error("failed to encode broadcast", zap.Error(err))
		return
	}
	for _, e := range r.registry.Peers() {
		r.send(e.ID, e.Peer, data)
	}
}

func (r *Relay) send(id string, peer registry.Peer, data []byte) {
	if peer.Send(data) {
		r.metrics.FramesSent.Add(1)
		return
	}
	// A peer that misses a frame is closed; its transport calls Disconnect
	// once the socket is gone and a reconnect gets a fresh welcome.
	r.metrics.SendsDropped.Add(1)
	r.log.Warn("send queue full, closing connection", zap.String("player_id", id))
	peer.Close()
}

// Snapshot returns the whole session plus the current authority
func (r *Relay) Snapshot(ctx context.Context) (*SessionView, error) {
	snap := r.store.Snapshot()
	current, _ := r.authority.Current()
	return &SessionView{
		Players:     snap.Players,
		Entities:    snap.Entities,
		Authority:   current,
		Connections: r.registry.Count(),
	}, nil
}

// Player returns one player record
func (r *Relay) Player(ctx context.Context, playerID string) (*state.PlayerState, error) {
	p, ok := r.store.Player(playerID)
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

// Entity returns one entity
func (r *Relay) Entity(ctx context.Context, entityID string) (*state.EntityState, error) {
	e, ok := r.store.Entity(entityID)
	if !ok {
		return nil, ErrEntityNotFound
	}
	return &e, nil
}

// Authority reports which connection may mutate entities
func (r *Relay) Authority(ctx context.Context) (*AuthorityInfo, error) {
	current, held := r.authority.Current()
	return &AuthorityInfo{ConnectionID: current, Held: held}, nil
}

// Stats merges relay counters with current session sizes
func (r *Relay) Stats(ctx context.Context) (map[string]any, error) {
	stats := r.metrics.Snapshot()
	players, entities := r.store.Counts()
	stats["players"] = players
	stats["entities"] = entities
	stats["connections"] = r.registry.Count()
	return stats, nil
}
