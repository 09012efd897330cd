package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type welcomeFrame struct {
	Type          string `json:"type"`
	PlayerID      string `json:"playerID"`
	IsFirstPlayer bool   `json:"isFirstPlayer"`
}

type inboundFrame struct {
	Type   string `json:"type"`
	Entity struct {
		ID string `json:"id"`
	} `json:"entity"`
}

type motion struct {
	Position Vec3    `json:"position"`
	Rotation float64 `json:"rotation"`
}

// Bot is one simulated player. It joins under Name, walks in a circle and,
// if it is the first player in the session, creates Entities entities and
// spins them.
type Bot struct {
	Name           string
	URL            string
	UpdateInterval time.Duration
	Entities       int

	log *zap.Logger
}

// Result summarizes one bot's session
type Result struct {
	Name      string
	PlayerID  string
	Authority bool
	Sent      int
	Received  map[string]int
}

// Run connects, plays until ctx ends, then closes the socket cleanly
func (b *Bot) Run(ctx context.Context) (*Result, error) {
	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.URL, err)
	}
	defer conn.Close()

	var welcome welcomeFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return nil, fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	conn.SetReadDeadline(time.Time{})

	res := &Result{
		Name:      b.Name,
		PlayerID:  welcome.PlayerID,
		Authority: welcome.IsFirstPlayer,
		Received:  map[string]int{"welcome": 1},
	}
	log = log.With(zap.String("bot", b.Name), zap.String("player_id", res.PlayerID))
	log.Info("connected", zap.Bool("authority", res.Authority))

	send := func(v any) error {
		if err := conn.WriteJSON(v); err != nil {
			return err
		}
		res.Sent++
		return nil
	}

	if err := send(map[string]any{"type": "username", "username": b.Name}); err != nil {
		return nil, fmt.Errorf("send username: %w", err)
	}

	var entityIDs []string
	if res.Authority && b.Entities > 0 {
		for i := 0; i < b.Entities; i++ {
			err := send(map[string]any{
				"type": "create_entity",
				"data": motion{Position: Vec3{X: float64(i) * 2}},
			})
			if err != nil {
				return nil, fmt.Errorf("create entity: %w", err)
			}
		}

		// The relay assigns ids; learn them from its entity_update replies
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for len(entityIDs) < b.Entities {
			var f inboundFrame
			if err := conn.ReadJSON(&f); err != nil {
				return nil, fmt.Errorf("await created entities: %w", err)
			}
			res.Received[f.Type]++
			if f.Type == "entity_update" {
				entityIDs = append(entityIDs, f.Entity.ID)
			}
		}
		conn.SetReadDeadline(time.Time{})
	}

	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f inboundFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			mu.Lock()
			res.Received[f.Type]++
			mu.Unlock()
		}
	}()

	ticker := time.NewTicker(b.UpdateInterval)
	defer ticker.Stop()

	step := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			step++
			angle := float64(step) / 10
			err := send(map[string]any{
				"type":     "update",
				"playerID": res.PlayerID,
				"data":     motion{Position: Vec3{X: 5 * math.Cos(angle), Z: 5 * math.Sin(angle)}, Rotation: angle},
			})
			if err != nil {
				log.Warn("update failed", zap.Error(err))
				break loop
			}
			for _, id := range entityIDs {
				err := send(map[string]any{
					"type":     "update_entity",
					"entityID": id,
					"data":     map[string]any{"rotation": angle},
				})
				if err != nil {
					log.Warn("entity update failed", zap.Error(err))
					break loop
				}
			}
		}
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		log.Debug("close failed", zap.Error(err))
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		conn.Close()
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	received := make(map[string]int, len(res.Received))
	for k, v := range res.Received {
		received[k] = v
	}
	res.Received = received

	log.Info("disconnected", zap.Int("sent", res.Sent), zap.Any("received", res.Received))
	return res, nil
}
