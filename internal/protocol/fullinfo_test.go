package protocol

import "testing"

func sampleFullInfo() FullInfo {
	f := FullInfo{
		Major: 1, Minor: 3, Micro: 2,
		GameName:     "1v1",
		MissionTitle: "Wrath",
		MissionID:    "wrath",
		Mode:         0,
		Status:       1,
		MaxPlayers:   2,
		PlayerCount:  2,
		HasStats:     true,
	}
	f.Slots[0] = FullPlayerSlot{Callsign: "alice", Connected: true}
	f.Slots[1] = FullPlayerSlot{Callsign: "bob", Connected: true}
	f.KillMatrix[0][1] = 5
	f.KillMatrix[1][0] = 3
	f.KillMatrix[1][1] = 1 // suicide
	f.TotalKills[0] = 5
	f.TotalKills[1] = 3
	f.TotalDeaths[0] = 3
	f.TotalDeaths[1] = 6
	f.Scores[0] = 5
	f.Scores[1] = 2
	f.KillGoal = 20
	return f
}

func TestFullInfoRoundTripStride14(t *testing.T) {
	in := sampleFullInfo()
	b := EncodeFullInfo(in)
	if fullSlotStride(len(b)) != 14 {
		t.Fatalf("stride for length %d = %d, want 14", len(b), fullSlotStride(len(b)))
	}
	out, err := DecodeFullInfo(b)
	if err != nil {
		t.Fatalf("DecodeFullInfo: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestFullInfoStride12(t *testing.T) {
	// Repack the stride-14 encoding into a 519-byte stride-12 packet.
	src := EncodeFullInfo(sampleFullInfo())
	b := make([]byte, 519)
	copy(b[:fullHeaderLen], src[:fullHeaderLen])
	for i := 0; i < fullSlotCount; i++ {
		copy(b[fullHeaderLen+i*12:fullHeaderLen+i*12+12], src[fullHeaderLen+i*14:fullHeaderLen+i*14+12])
	}
	copy(b[fullHeaderLen+fullSlotCount*12:], src[fullHeaderLen+fullSlotCount*14:])

	out, err := DecodeFullInfo(b)
	if err != nil {
		t.Fatalf("DecodeFullInfo: %v", err)
	}
	if !out.HasStats {
		t.Fatal("stats block not decoded from 519-byte packet")
	}
	if out.Slots[0].Callsign != "alice" || !out.Slots[1].Connected {
		t.Errorf("slots not decoded: %+v", out.Slots[:2])
	}
	if out.KillMatrix[0][1] != 5 || out.TotalKills[0] != 5 || out.Scores[1] != 2 {
		t.Errorf("stats not decoded: matrix=%d kills=%d score=%d",
			out.KillMatrix[0][1], out.TotalKills[0], out.Scores[1])
	}
}

func TestFullInfoTooShort(t *testing.T) {
	b := make([]byte, 50)
	b[0] = OpFullInfo
	if _, err := DecodeFullInfo(b); err == nil {
		t.Error("expected error for 50-byte packet")
	}
}

func TestFullInfoWithoutStatsBlock(t *testing.T) {
	// Long enough for slots and settings scalars, too short for the stats.
	n := fullHeaderLen + fullSlotCount*14 + fullSettingsScalars + 10
	b := make([]byte, n)
	b[0] = OpFullInfo
	out, err := DecodeFullInfo(b)
	if err != nil {
		t.Fatalf("DecodeFullInfo: %v", err)
	}
	if out.HasStats {
		t.Error("stats reported present on a truncated settings area")
	}
}

func TestFullPlayerSlotPresent(t *testing.T) {
	if (FullPlayerSlot{}).Present() {
		t.Error("empty slot reported present")
	}
	if !(FullPlayerSlot{Callsign: "x"}).Present() {
		t.Error("named slot reported absent")
	}
	if !(FullPlayerSlot{Connected: true}).Present() {
		t.Error("connected slot reported absent")
	}
}
