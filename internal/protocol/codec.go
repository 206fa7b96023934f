package protocol

import (
	"encoding/binary"
	"strings"
)

// Register is the opcode-0 announcement a game host sends to the tracker.
// The micro field is a u16 in 15-byte frames and a u8 in 14-byte frames.
type Register struct {
	TrackerVer uint8
	Version    uint8 // 1=D1, 2=D2
	GamePort   uint16
	GameID     uint32
	Major      uint16
	Minor      uint16
	Micro      uint16
}

func DecodeRegister(b []byte) (Register, error) {
	if len(b) != 14 && len(b) != 15 {
		return Register{}, malformed(OpRegister, 15, len(b))
	}
	if b[0] != OpRegister {
		return Register{}, malformed(OpRegister, 15, len(b))
	}
	r := Register{
		TrackerVer: b[1],
		Version:    b[2],
		GamePort:   binary.LittleEndian.Uint16(b[3:5]),
		GameID:     binary.LittleEndian.Uint32(b[5:9]),
		Major:      binary.LittleEndian.Uint16(b[9:11]),
		Minor:      binary.LittleEndian.Uint16(b[11:13]),
	}
	if len(b) == 15 {
		r.Micro = binary.LittleEndian.Uint16(b[13:15])
	} else {
		r.Micro = uint16(b[13])
	}
	return r, nil
}

// DecodeUnregister decodes the 5-byte opcode-1 frame.
func DecodeUnregister(b []byte) (uint32, error) {
	if len(b) != 5 || b[0] != OpUnregister {
		return 0, malformed(OpUnregister, 5, len(b))
	}
	return binary.LittleEndian.Uint32(b[1:5]), nil
}

// VersionDeny is the 9-byte opcode-1 frame a game answers with when a
// full-info request carried the wrong netgame protocol number.
type VersionDeny struct {
	Major, Minor, Micro uint16
	NetgameProto        uint16
}

func DecodeVersionDeny(b []byte) (VersionDeny, error) {
	if len(b) != 9 || b[0] != OpUnregister {
		return VersionDeny{}, malformed(OpUnregister, 9, len(b))
	}
	return VersionDeny{
		Major:        binary.LittleEndian.Uint16(b[1:3]),
		Minor:        binary.LittleEndian.Uint16(b[3:5]),
		Micro:        binary.LittleEndian.Uint16(b[5:7]),
		NetgameProto: binary.LittleEndian.Uint16(b[7:9]),
	}, nil
}

// DecodeGameListReq decodes the 3-byte ingress variant of opcode 2 and
// returns the D1/D2 discriminator.
func DecodeGameListReq(b []byte) (uint16, error) {
	if len(b) != 3 || b[0] != OpGameList {
		return 0, malformed(OpGameList, 3, len(b))
	}
	return binary.LittleEndian.Uint16(b[1:3]), nil
}

// FullInfoReq is the 13-byte egress variant of opcode 2.
type FullInfoReq struct {
	Version             uint8 // selects the D1XR/D2XR request id
	Major, Minor, Micro uint16
	NetgameProto        uint16
}

func EncodeFullInfoReq(r FullInfoReq) []byte {
	b := make([]byte, 13)
	b[0] = OpGameList
	copy(b[1:5], ReqID(r.Version))
	binary.LittleEndian.PutUint16(b[5:7], r.Major)
	binary.LittleEndian.PutUint16(b[7:9], r.Minor)
	binary.LittleEndian.PutUint16(b[9:11], r.Micro)
	binary.LittleEndian.PutUint16(b[11:13], r.NetgameProto)
	return b
}

func DecodeFullInfoReq(b []byte) (FullInfoReq, error) {
	if len(b) != 13 || b[0] != OpGameList {
		return FullInfoReq{}, malformed(OpGameList, 13, len(b))
	}
	r := FullInfoReq{
		Version:      VersionD1,
		Major:        binary.LittleEndian.Uint16(b[5:7]),
		Minor:        binary.LittleEndian.Uint16(b[7:9]),
		Micro:        binary.LittleEndian.Uint16(b[9:11]),
		NetgameProto: binary.LittleEndian.Uint16(b[11:13]),
	}
	if strings.HasPrefix(string(b[1:5]), "D2") {
		r.Version = VersionD2
	}
	return r, nil
}

// LiteInfoReq is the 11-byte opcode-4 probe sent to a game's announced port.
type LiteInfoReq struct {
	Version             uint8
	Major, Minor, Micro uint16
}

func EncodeLiteInfoReq(r LiteInfoReq) []byte {
	b := make([]byte, 11)
	b[0] = OpLiteInfoReq
	copy(b[1:5], ReqID(r.Version))
	binary.LittleEndian.PutUint16(b[5:7], r.Major)
	binary.LittleEndian.PutUint16(b[7:9], r.Minor)
	binary.LittleEndian.PutUint16(b[9:11], r.Micro)
	return b
}

func DecodeLiteInfoReq(b []byte) (LiteInfoReq, error) {
	if len(b) != 11 || b[0] != OpLiteInfoReq {
		return LiteInfoReq{}, malformed(OpLiteInfoReq, 11, len(b))
	}
	r := LiteInfoReq{
		Version: VersionD1,
		Major:   binary.LittleEndian.Uint16(b[5:7]),
		Minor:   binary.LittleEndian.Uint16(b[7:9]),
		Micro:   binary.LittleEndian.Uint16(b[9:11]),
	}
	if strings.HasPrefix(string(b[1:5]), "D2") {
		r.Version = VersionD2
	}
	return r, nil
}

// LiteInfo is the fixed 73-byte opcode-5 state announcement.
type LiteInfo struct {
	Major, Minor, Micro uint16
	GameID              uint32
	GameName            string
	MissionTitle        string
	MissionID           string
	Level               uint32
	Mode                uint8
	RefuseFlag          uint8
	Difficulty          uint8
	Status              uint8
	PlayerCount         uint8
	MaxPlayers          uint8
	Flags               uint8
}

const liteInfoLen = 73

func DecodeLiteInfo(b []byte) (LiteInfo, error) {
	if len(b) != liteInfoLen || b[0] != OpLiteInfo {
		return LiteInfo{}, malformed(OpLiteInfo, liteInfoLen, len(b))
	}
	return LiteInfo{
		Major:        binary.LittleEndian.Uint16(b[1:3]),
		Minor:        binary.LittleEndian.Uint16(b[3:5]),
		Micro:        binary.LittleEndian.Uint16(b[5:7]),
		GameID:       binary.LittleEndian.Uint32(b[7:11]),
		GameName:     trimFixedString(b[11:27]),
		MissionTitle: trimFixedString(b[27:53]),
		MissionID:    trimFixedString(b[53:62]),
		Level:        binary.LittleEndian.Uint32(b[62:66]),
		Mode:         b[66],
		RefuseFlag:   b[67],
		Difficulty:   b[68],
		Status:       b[69],
		PlayerCount:  b[70],
		MaxPlayers:   b[71],
		Flags:        b[72],
	}, nil
}

// EncodeLiteInfo is the inverse of DecodeLiteInfo. The tracker never emits
// opcode 5 itself; the encoder exists for the test harness that plays game
// hosts against the engine.
func EncodeLiteInfo(l LiteInfo) []byte {
	b := make([]byte, liteInfoLen)
	b[0] = OpLiteInfo
	binary.LittleEndian.PutUint16(b[1:3], l.Major)
	binary.LittleEndian.PutUint16(b[3:5], l.Minor)
	binary.LittleEndian.PutUint16(b[5:7], l.Micro)
	binary.LittleEndian.PutUint32(b[7:11], l.GameID)
	putFixedString(b[11:27], l.GameName)
	putFixedString(b[27:53], l.MissionTitle)
	putFixedString(b[53:62], l.MissionID)
	binary.LittleEndian.PutUint32(b[62:66], l.Level)
	b[66] = l.Mode
	b[67] = l.RefuseFlag
	b[68] = l.Difficulty
	b[69] = l.Status
	b[70] = l.PlayerCount
	b[71] = l.MaxPlayers
	b[72] = l.Flags
	return b
}

// EncodeRegisterAck builds the single-byte opcode-21 acknowledgement.
func EncodeRegisterAck() []byte {
	return []byte{OpRegisterAck}
}

func DecodeRegisterAck(b []byte) error {
	if len(b) != 1 || b[0] != OpRegisterAck {
		return malformed(OpRegisterAck, 1, len(b))
	}
	return nil
}

// GameListEntry is one opcode-22 frame of a game-list response.
type GameListEntry struct {
	IPv6                bool
	IP                  string
	Port                uint16
	Major, Minor, Micro uint16
	GameID              uint32
	GameName            string
	MissionTitle        string
	MissionID           string
	Level               uint32
	Mode                uint8
	RefuseFlag          uint8
	Difficulty          uint8
	Status              uint8
	PlayerCount         uint8
	MaxPlayers          uint8
	Flags               uint8
}

func EncodeGameListEntry(e GameListEntry) []byte {
	b := make([]byte, 0, 2+len(e.IP)+1+69)
	b = append(b, OpGameListResp)
	if e.IPv6 {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = append(b, []byte(e.IP)...)
	b = append(b, 0)
	var tail [68]byte
	binary.LittleEndian.PutUint16(tail[0:2], e.Port)
	binary.LittleEndian.PutUint16(tail[2:4], e.Major)
	binary.LittleEndian.PutUint16(tail[4:6], e.Minor)
	binary.LittleEndian.PutUint16(tail[6:8], e.Micro)
	binary.LittleEndian.PutUint32(tail[8:12], e.GameID)
	putFixedString(tail[12:28], e.GameName)
	putFixedString(tail[28:54], e.MissionTitle)
	putFixedString(tail[54:63], e.MissionID)
	binary.LittleEndian.PutUint32(tail[63:67], e.Level)
	b = append(b, tail[:67]...)
	b = append(b, e.Mode, e.RefuseFlag, e.Difficulty, e.Status, e.PlayerCount, e.MaxPlayers, e.Flags, 0)
	return b
}

func DecodeGameListEntry(b []byte) (GameListEntry, error) {
	if len(b) < 3 || b[0] != OpGameListResp {
		return GameListEntry{}, malformed(OpGameListResp, 3, len(b))
	}
	nul := -1
	for i := 2; i < len(b); i++ {
		if b[i] == 0 {
			nul = i
			break
		}
	}
	if nul < 0 || len(b) != nul+1+75 {
		return GameListEntry{}, malformed(OpGameListResp, nul + 1 + 75, len(b))
	}
	e := GameListEntry{
		IPv6: b[1] == 1,
		IP:   string(b[2:nul]),
	}
	t := b[nul+1:]
	e.Port = binary.LittleEndian.Uint16(t[0:2])
	e.Major = binary.LittleEndian.Uint16(t[2:4])
	e.Minor = binary.LittleEndian.Uint16(t[4:6])
	e.Micro = binary.LittleEndian.Uint16(t[6:8])
	e.GameID = binary.LittleEndian.Uint32(t[8:12])
	e.GameName = trimFixedString(t[12:28])
	e.MissionTitle = trimFixedString(t[28:54])
	e.MissionID = trimFixedString(t[54:63])
	e.Level = binary.LittleEndian.Uint32(t[63:67])
	e.Mode = t[67]
	e.RefuseFlag = t[68]
	e.Difficulty = t[69]
	e.Status = t[70]
	e.PlayerCount = t[71]
	e.MaxPlayers = t[72]
	e.Flags = t[73]
	return e, nil
}

// GamelogKill is the 13-byte opcode-31 in-game kill event.
type GamelogKill struct {
	GameTimeMicros uint64
	KillerSlot     uint8
	VictimSlot     uint8
	WeaponType     uint8
	WeaponID       uint8
}

func DecodeGamelogKill(b []byte) (GamelogKill, error) {
	if len(b) != 13 || b[0] != OpGamelogKill {
		return GamelogKill{}, malformed(OpGamelogKill, 13, len(b))
	}
	return GamelogKill{
		GameTimeMicros: binary.LittleEndian.Uint64(b[1:9]),
		KillerSlot:     b[9],
		VictimSlot:     b[10],
		WeaponType:     b[11],
		WeaponID:       b[12],
	}, nil
}

// GamelogChat is the variable-length opcode-32 in-game chat event.
type GamelogChat struct {
	GameTimeMicros uint64
	SenderSlot     uint8
	Message        string
}

func DecodeGamelogChat(b []byte) (GamelogChat, error) {
	if len(b) < 11 || b[0] != OpGamelogChat {
		return GamelogChat{}, malformed(OpGamelogChat, 11, len(b))
	}
	msg := strings.TrimSpace(strings.ReplaceAll(string(b[10:]), "\x00", ""))
	return GamelogChat{
		GameTimeMicros: binary.LittleEndian.Uint64(b[1:9]),
		SenderSlot:     b[9],
		Message:        msg,
	}, nil
}

// IsWebUIPing reports whether the frame is an opcode-99 dashboard ping.
func IsWebUIPing(b []byte) bool {
	return len(b) >= 5 && b[0] == OpWebUIPing && string(b[1:5]) == "ping"
}

// EncodePong builds the 8-byte reply to a web-UI ping.
func EncodePong(unixSeconds uint32) []byte {
	b := make([]byte, 8)
	copy(b[0:4], "pong")
	binary.LittleEndian.PutUint32(b[4:8], unixSeconds)
	return b
}

func DecodePong(b []byte) (uint32, error) {
	if len(b) != 8 || string(b[0:4]) != "pong" {
		return 0, malformed(OpWebUIPing, 8, len(b))
	}
	return binary.LittleEndian.Uint32(b[4:8]), nil
}
