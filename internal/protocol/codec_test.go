package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecodeRegisterS1(t *testing.T) {
	// 15-byte REGISTER: game-port 5000, game-id 0x04030201, v1.3.2, D1.
	b := []byte{
		0x00, 0x00, 0x01,
		0x88, 0x13,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x00,
		0x03, 0x00,
		0x02, 0x00,
	}
	r, err := DecodeRegister(b)
	if err != nil {
		t.Fatalf("DecodeRegister: %v", err)
	}
	if r.Version != VersionD1 {
		t.Errorf("version = %d, want %d", r.Version, VersionD1)
	}
	if r.GamePort != 5000 {
		t.Errorf("game port = %d, want 5000", r.GamePort)
	}
	if r.GameID != 0x04030201 {
		t.Errorf("game id = %#x, want 0x04030201", r.GameID)
	}
	if r.Major != 1 || r.Minor != 3 || r.Micro != 2 {
		t.Errorf("version triplet = %d.%d.%d, want 1.3.2", r.Major, r.Minor, r.Micro)
	}
}

func TestDecodeRegisterShortMicro(t *testing.T) {
	b := []byte{0x00, 0x00, 0x02, 0x88, 0x13, 0x01, 0x02, 0x03, 0x04, 0x01, 0x00, 0x03, 0x00, 0x07}
	r, err := DecodeRegister(b)
	if err != nil {
		t.Fatalf("DecodeRegister: %v", err)
	}
	if r.Micro != 7 {
		t.Errorf("micro = %d, want 7", r.Micro)
	}
	if r.Version != VersionD2 {
		t.Errorf("version = %d, want %d", r.Version, VersionD2)
	}
}

func TestDecodeRegisterRejectsBadLengths(t *testing.T) {
	for _, n := range []int{0, 1, 13, 16, 73} {
		b := make([]byte, n)
		if _, err := DecodeRegister(b); err == nil {
			t.Errorf("length %d: expected error", n)
		} else {
			var mp *MalformedPacketError
			if !errors.As(err, &mp) {
				t.Errorf("length %d: error is %T, want MalformedPacketError", n, err)
			}
		}
	}
}

func TestUnregisterAndVersionDenyShareOpcode(t *testing.T) {
	unreg := []byte{0x01, 0x01, 0x02, 0x03, 0x04}
	id, err := DecodeUnregister(unreg)
	if err != nil {
		t.Fatalf("DecodeUnregister: %v", err)
	}
	if id != 0x04030201 {
		t.Errorf("game id = %#x, want 0x04030201", id)
	}

	deny := make([]byte, 9)
	deny[0] = OpUnregister
	binary.LittleEndian.PutUint16(deny[1:3], 1)
	binary.LittleEndian.PutUint16(deny[3:5], 3)
	binary.LittleEndian.PutUint16(deny[5:7], 2)
	binary.LittleEndian.PutUint16(deny[7:9], 7650)
	vd, err := DecodeVersionDeny(deny)
	if err != nil {
		t.Fatalf("DecodeVersionDeny: %v", err)
	}
	if vd.NetgameProto != 7650 {
		t.Errorf("netgame proto = %d, want 7650", vd.NetgameProto)
	}

	if _, err := DecodeUnregister(deny); err == nil {
		t.Error("DecodeUnregister accepted a 9-byte frame")
	}
	if _, err := DecodeVersionDeny(unreg); err == nil {
		t.Error("DecodeVersionDeny accepted a 5-byte frame")
	}
}

func TestLiteInfoReqRoundTrip(t *testing.T) {
	for _, version := range []uint8{VersionD1, VersionD2} {
		in := LiteInfoReq{Version: version, Major: 1, Minor: 3, Micro: 2}
		b := EncodeLiteInfoReq(in)
		if len(b) != 11 {
			t.Fatalf("encoded length = %d, want 11", len(b))
		}
		if b[0] != OpLiteInfoReq {
			t.Fatalf("opcode = %d, want %d", b[0], OpLiteInfoReq)
		}
		want := "D1XR"
		if version == VersionD2 {
			want = "D2XR"
		}
		if string(b[1:5]) != want {
			t.Errorf("req id = %q, want %q", b[1:5], want)
		}
		out, err := DecodeLiteInfoReq(b)
		if err != nil {
			t.Fatalf("DecodeLiteInfoReq: %v", err)
		}
		if out != in {
			t.Errorf("round trip = %+v, want %+v", out, in)
		}
	}
}

func TestFullInfoReqRoundTrip(t *testing.T) {
	in := FullInfoReq{Version: VersionD1, Major: 1, Minor: 3, Micro: 2, NetgameProto: 7650}
	b := EncodeFullInfoReq(in)
	if len(b) != 13 {
		t.Fatalf("encoded length = %d, want 13", len(b))
	}
	out, err := DecodeFullInfoReq(b)
	if err != nil {
		t.Fatalf("DecodeFullInfoReq: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestOpcode2LengthDisambiguation(t *testing.T) {
	req := []byte{0x02, 0x01, 0x00}
	version, err := DecodeGameListReq(req)
	if err != nil {
		t.Fatalf("DecodeGameListReq: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if _, err := DecodeGameListReq(EncodeFullInfoReq(FullInfoReq{Version: VersionD1})); err == nil {
		t.Error("DecodeGameListReq accepted a 13-byte frame")
	}
}

func TestLiteInfoRoundTrip(t *testing.T) {
	in := LiteInfo{
		Major: 1, Minor: 3, Micro: 2,
		GameID:       0x04030201,
		GameName:     "1v1",
		MissionTitle: "Wrath",
		MissionID:    "wrath",
		Level:        1,
		Mode:         0,
		Status:       1,
		PlayerCount:  2,
		MaxPlayers:   2,
	}
	b := EncodeLiteInfo(in)
	if len(b) != 73 {
		t.Fatalf("encoded length = %d, want 73", len(b))
	}
	out, err := DecodeLiteInfo(b)
	if err != nil {
		t.Fatalf("DecodeLiteInfo: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestDecodeLiteInfoRejectsBadLengths(t *testing.T) {
	for _, n := range []int{0, 5, 72, 74, 100} {
		b := make([]byte, n)
		if n > 0 {
			b[0] = OpLiteInfo
		}
		if _, err := DecodeLiteInfo(b); err == nil {
			t.Errorf("length %d: expected error", n)
		}
	}
}

func TestLiteInfoStripsNonPrintable(t *testing.T) {
	b := EncodeLiteInfo(LiteInfo{GameName: "ok"})
	b[12] = 0x07 // inject a bell into the name field
	out, err := DecodeLiteInfo(b)
	if err != nil {
		t.Fatalf("DecodeLiteInfo: %v", err)
	}
	if out.GameName != "o" {
		t.Errorf("game name = %q, want %q", out.GameName, "o")
	}
}

func TestRegisterAckRoundTrip(t *testing.T) {
	b := EncodeRegisterAck()
	if !bytes.Equal(b, []byte{21}) {
		t.Fatalf("encoded = %v, want [21]", b)
	}
	if err := DecodeRegisterAck(b); err != nil {
		t.Fatalf("DecodeRegisterAck: %v", err)
	}
	if err := DecodeRegisterAck([]byte{21, 0}); err == nil {
		t.Error("DecodeRegisterAck accepted a 2-byte frame")
	}
}

func TestGameListEntryRoundTrip(t *testing.T) {
	in := GameListEntry{
		IP:           "203.0.113.7",
		Port:         5000,
		Major:        1, Minor: 3, Micro: 2,
		GameID:       0x04030201,
		GameName:     "1v1",
		MissionTitle: "Wrath",
		MissionID:    "wrath",
		Level:        1,
		Status:       1,
		PlayerCount:  2,
		MaxPlayers:   2,
	}
	b := EncodeGameListEntry(in)
	out, err := DecodeGameListEntry(b)
	if err != nil {
		t.Fatalf("DecodeGameListEntry: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if _, err := DecodeGameListEntry(b[:len(b)-1]); err == nil {
		t.Error("DecodeGameListEntry accepted a truncated frame")
	}
}

func TestDecodeGamelogKill(t *testing.T) {
	b := make([]byte, 13)
	b[0] = OpGamelogKill
	binary.LittleEndian.PutUint64(b[1:9], 123456789)
	b[9] = 0
	b[10] = 1
	b[11] = 0
	b[12] = 13
	k, err := DecodeGamelogKill(b)
	if err != nil {
		t.Fatalf("DecodeGamelogKill: %v", err)
	}
	if k.GameTimeMicros != 123456789 {
		t.Errorf("game time = %d, want 123456789", k.GameTimeMicros)
	}
	if k.KillerSlot != 0 || k.VictimSlot != 1 {
		t.Errorf("slots = %d/%d, want 0/1", k.KillerSlot, k.VictimSlot)
	}
	if WeaponName(k.WeaponType, k.WeaponID) != "Plasma Cannon" {
		t.Errorf("weapon = %q, want Plasma Cannon", WeaponName(k.WeaponType, k.WeaponID))
	}
	if _, err := DecodeGamelogKill(b[:12]); err == nil {
		t.Error("accepted 12-byte frame")
	}
	if _, err := DecodeGamelogKill(append(b, 0)); err == nil {
		t.Error("accepted 14-byte frame")
	}
}

func TestDecodeGamelogChat(t *testing.T) {
	payload := append([]byte("hello there"), 0)
	b := make([]byte, 10, 10+len(payload))
	b[0] = OpGamelogChat
	binary.LittleEndian.PutUint64(b[1:9], 42)
	b[9] = 3
	b = append(b, payload...)
	c, err := DecodeGamelogChat(b)
	if err != nil {
		t.Fatalf("DecodeGamelogChat: %v", err)
	}
	if c.SenderSlot != 3 || c.Message != "hello there" {
		t.Errorf("got slot %d message %q", c.SenderSlot, c.Message)
	}
	if _, err := DecodeGamelogChat(b[:10]); err == nil {
		t.Error("accepted 10-byte frame")
	}
}

func TestPingPong(t *testing.T) {
	if !IsWebUIPing([]byte{99, 'p', 'i', 'n', 'g'}) {
		t.Error("5-byte ping not recognized")
	}
	if IsWebUIPing([]byte{99, 'p', 'i', 'n'}) {
		t.Error("4-byte frame recognized as ping")
	}
	b := EncodePong(1700000000)
	if len(b) != 8 {
		t.Fatalf("pong length = %d, want 8", len(b))
	}
	ts, err := DecodePong(b)
	if err != nil {
		t.Fatalf("DecodePong: %v", err)
	}
	if ts != 1700000000 {
		t.Errorf("timestamp = %d, want 1700000000", ts)
	}
}
