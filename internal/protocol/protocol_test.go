package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeBase_RoutesByType(t *testing.T) {
	raw := []byte(`{"type":"PLACE","protocol_version":"1.0","peer_id":"P1","cell":[0,0],"entries":[]}`)
	base, err := DecodeBase(raw)
	if err != nil {
		t.Fatalf("decode base: %v", err)
	}
	if base.Type != TypePlace {
		t.Fatalf("type = %q, want %q", base.Type, TypePlace)
	}
	if base.ProtocolVersion != Version {
		t.Fatalf("version = %q, want %q", base.ProtocolVersion, Version)
	}

	var msg PlaceMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode place: %v", err)
	}
	if msg.PeerID != "P1" || msg.Cell != [2]int{0, 0} {
		t.Fatalf("unexpected place payload: %+v", msg)
	}
}

func TestDecodeBase_Malformed(t *testing.T) {
	if _, err := DecodeBase([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMessages_RoundTrip(t *testing.T) {
	out := PlaceMsg{
		Type:            TypePlace,
		ProtocolVersion: Version,
		PeerID:          "P9",
		Cell:            [2]int{-4, 7},
		Entries: []PlacementEntry{
			{ID: "C-4_7_rock_2", Category: "rock", Pos: [3]float64{-250.1, 3.4, 460.0}, Yaw: 0.5, Scale: 1.2, Quality: 2},
		},
	}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var in PlaceMsg
	if err := json.Unmarshal(b, &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.Entries[0].ID != out.Entries[0].ID || in.Cell != out.Cell {
		t.Fatalf("round trip mismatch: %+v", in)
	}
}
