package core

import "testing"

func TestRegistryImplicitRoomLifecycle(t *testing.T) {
	reg := NewRegistry()
	a := NewClient("conn-a", "u-a", "a")
	b := NewClient("conn-b", "u-b", "b")

	room := reg.Room("ride-1")
	room.AddClient(a)
	a.Rooms["ride-1"] = struct{}{}
	if reg.Lookup("ride-1") != room {
		t.Fatal("room not registered")
	}
	if !room.Has(a) || room.Has(b) {
		t.Fatal("unexpected membership")
	}

	// Same ride resolves to the same room.
	if reg.Room("ride-1") != room {
		t.Fatal("duplicate room created for one ride")
	}

	room.AddClient(b)
	b.Rooms["ride-1"] = struct{}{}
	if room.Size() != 2 {
		t.Fatalf("expected 2 members, got %d", room.Size())
	}

	if !reg.Remove(a, "ride-1") {
		t.Fatal("remove of member reported false")
	}
	if reg.Remove(a, "ride-1") {
		t.Fatal("second remove reported true")
	}

	// Last member out drops the room.
	reg.Remove(b, "ride-1")
	if reg.Lookup("ride-1") != nil {
		t.Fatal("empty room not dropped")
	}
	if reg.Rooms() != 0 {
		t.Fatalf("expected no rooms, got %d", reg.Rooms())
	}
}

func TestRegistryRemoveAll(t *testing.T) {
	reg := NewRegistry()
	c := NewClient("conn", "u", "u")

	for _, ride := range []string{"ride-1", "ride-2", "ride-3"} {
		reg.Room(ride).AddClient(c)
		c.Rooms[ride] = struct{}{}
	}

	rides := reg.RemoveAll(c)
	if len(rides) != 3 {
		t.Fatalf("expected 3 rooms left, got %v", rides)
	}
	if reg.Rooms() != 0 {
		t.Fatalf("rooms should be empty, got %d", reg.Rooms())
	}
}
