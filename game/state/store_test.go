package state

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestStore_AddPlayer(t *testing.T) {
	store := NewStore()
	store.AddPlayer("p1")

	p, ok := store.Player("p1")
	if !ok {
		t.Fatal("Expected player to exist after AddPlayer")
	}
	if p != (PlayerState{}) {
		t.Errorf("Expected zeroed player, got %+v", p)
	}

	t.Run("no-op when present", func(t *testing.T) {
		store.UpdatePlayer("p1", Vec3{X: 1}, 2)
		store.AddPlayer("p1")
		p, _ := store.Player("p1")
		if p.Position.X != 1 || p.Rotation != 2 {
			t.Errorf("AddPlayer clobbered existing record: %+v", p)
		}
	})
}

func TestStore_RemovePlayer(t *testing.T) {
	store := NewStore()
	store.AddPlayer("p1")

	if !store.RemovePlayer("p1") {
		t.Error("Expected RemovePlayer to report existing player")
	}
	if store.RemovePlayer("p1") {
		t.Error("Expected second RemovePlayer to report false")
	}
	if _, ok := store.Player("p1"); ok {
		t.Error("Player should be gone")
	}
}

func TestStore_SetUsername(t *testing.T) {
	store := NewStore()
	store.AddPlayer("p1")

	tests := []struct {
		name      string
		username  string
		wantFirst bool
		wantName  string
	}{
		{"empty before any name", "", false, ""},
		{"first non-empty", "alice", true, "alice"},
		{"rename", "bob", false, "bob"},
		{"empty after name keeps name", "", false, "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := store.SetUsername("p1", tt.username)
			if first != tt.wantFirst {
				t.Errorf("Expected first=%v, got %v", tt.wantFirst, first)
			}
			p, _ := store.Player("p1")
			if p.Username != tt.wantName {
				t.Errorf("Expected username %q, got %q", tt.wantName, p.Username)
			}
		})
	}

	t.Run("unknown id", func(t *testing.T) {
		if store.SetUsername("ghost", "x") {
			t.Error("Expected unknown id to be ignored")
		}
		if _, ok := store.Player("ghost"); ok {
			t.Error("SetUsername must not create players")
		}
	})
}

func TestStore_UpdatePlayer(t *testing.T) {
	store := NewStore()
	store.AddPlayer("p1")
	store.SetUsername("p1", "alice")

	store.UpdatePlayer("p1", Vec3{X: 1, Y: 2, Z: 3}, 0.5)
	p, _ := store.Player("p1")
	if p.Position != (Vec3{X: 1, Y: 2, Z: 3}) || p.Rotation != 0.5 {
		t.Errorf("Unexpected player after update: %+v", p)
	}
	if p.Username != "alice" {
		t.Errorf("Update must preserve username, got %q", p.Username)
	}

	t.Run("creates missing record", func(t *testing.T) {
		store.UpdatePlayer("late", Vec3{Y: 4}, 1)
		p, ok := store.Player("late")
		if !ok {
			t.Fatal("Expected implicit player record")
		}
		if p.Username != "" || p.Position.Y != 4 {
			t.Errorf("Unexpected implicit record: %+v", p)
		}
	})
}

func TestStore_CreateEntity_MonotonicIDs(t *testing.T) {
	store := NewStore()

	first := store.CreateEntity(EntityPatch{Model: json.RawMessage(`"box"`)})
	if first.ID != "entity_0" {
		t.Errorf("Expected entity_0, got %s", first.ID)
	}
	if !store.DeleteEntity(first.ID) {
		t.Fatal("Expected delete to succeed")
	}

	seen := map[string]bool{first.ID: true}
	for i := 1; i <= 5; i++ {
		e := store.CreateEntity(EntityPatch{})
		want := fmt.Sprintf("entity_%d", i)
		if e.ID != want {
			t.Errorf("Expected %s, got %s", want, e.ID)
		}
		if seen[e.ID] {
			t.Errorf("Entity id %s reused", e.ID)
		}
		seen[e.ID] = true
		store.DeleteEntity(e.ID)
	}
}

func TestStore_UpdateEntity_ShallowMerge(t *testing.T) {
	store := NewStore()
	pos := Vec3{X: 1, Y: 2, Z: 3}
	e := store.CreateEntity(EntityPatch{
		Position: &pos,
		Rotation: floatPtr(0.25),
		Model:    json.RawMessage(`{"mesh":"box"}`),
	})

	updated, ok := store.UpdateEntity(e.ID, EntityPatch{Rotation: floatPtr(1.5)})
	if !ok {
		t.Fatal("Expected update to succeed")
	}
	if updated.Position != pos {
		t.Errorf("Position clobbered: %+v", updated.Position)
	}
	if updated.Rotation != 1.5 {
		t.Errorf("Expected rotation 1.5, got %v", updated.Rotation)
	}
	if string(updated.Model) != `{"mesh":"box"}` {
		t.Errorf("Model clobbered: %s", updated.Model)
	}
	if updated.ID != e.ID {
		t.Errorf("ID changed to %s", updated.ID)
	}

	t.Run("idempotent", func(t *testing.T) {
		patch := EntityPatch{Position: &Vec3{X: 9}, Model: json.RawMessage(`"sphere"`)}
		once, _ := store.UpdateEntity(e.ID, patch)
		twice, _ := store.UpdateEntity(e.ID, patch)
		if once.Position != twice.Position || once.Rotation != twice.Rotation || string(once.Model) != string(twice.Model) {
			t.Errorf("Repeated update changed state: %+v vs %+v", once, twice)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, ok := store.UpdateEntity("entity_99", EntityPatch{Rotation: floatPtr(1)}); ok {
			t.Error("Expected unknown entity update to be a no-op")
		}
		if _, exists := store.Entity("entity_99"); exists {
			t.Error("UpdateEntity must not create entities")
		}
	})
}

func TestStore_DeleteEntity_Unknown(t *testing.T) {
	store := NewStore()
	if store.DeleteEntity("entity_0") {
		t.Error("Expected delete of unknown entity to report false")
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	store := NewStore()
	store.AddPlayer("p1")
	e := store.CreateEntity(EntityPatch{Model: json.RawMessage(`"box"`)})

	snap := store.Snapshot()
	snap.Players["p1"] = PlayerState{Username: "mutated"}
	delete(snap.Entities, e.ID)

	p, _ := store.Player("p1")
	if p.Username != "" {
		t.Error("Mutating snapshot players leaked into store")
	}
	if _, ok := store.Entity(e.ID); !ok {
		t.Error("Mutating snapshot entities leaked into store")
	}

	ent, _ := store.Entity(e.ID)
	ent.Model[1] = 'X'
	again, _ := store.Entity(e.ID)
	if string(again.Model) != `"box"` {
		t.Errorf("Entity model aliased store memory: %s", again.Model)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	const workers = 20

	var wg sync.WaitGroup
	ids := make(chan string, workers*10)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			player := fmt.Sprintf("p%d", n)
			store.AddPlayer(player)
			for j := 0; j < 10; j++ {
				store.UpdatePlayer(player, Vec3{X: float64(j)}, float64(n))
				e := store.CreateEntity(EntityPatch{})
				ids <- e.ID
				store.UpdateEntity(e.ID, EntityPatch{Rotation: floatPtr(float64(j))})
				_ = store.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate entity id %s", id)
		}
		seen[id] = true
	}

	players, entities := store.Counts()
	if players != workers {
		t.Errorf("Expected %d players, got %d", workers, players)
	}
	if entities != workers*10 {
		t.Errorf("Expected %d entities, got %d", workers*10, entities)
	}
}
