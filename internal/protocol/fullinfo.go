package protocol

import "encoding/binary"

// Full-info layout constants. The packet carries 12 fixed-size player slots
// whose stride depends on the total packet length (old releases ship 12-byte
// slots in 519/520-byte packets, newer ones add color bytes for a 14-byte
// stride), followed by a settings area. The scoreboard block sits at a fixed
// offset inside the settings area.
const (
	fullSlotCount       = 12
	fullHeaderLen       = 7 // opcode + 3x u16 version
	fullSettingsScalars = 57
	fullStatsOffset     = 156 // into the settings area
	fullStatsLen        = 8*8*2 + 8*2 + 8*2 + 5*4 + 8*4
)

// FullPlayerSlot is one entry of the 12-slot player table.
type FullPlayerSlot struct {
	Callsign     string
	Connected    bool
	Rank         uint8
	Color        uint8
	MissileColor uint8
}

// Present reports whether the slot is occupied. Slots with an empty callsign
// and connected==0 are absent.
func (s FullPlayerSlot) Present() bool {
	return s.Callsign != "" || s.Connected
}

// FullInfo is the decoded opcode-3 packet: the player table, netgame
// settings, and, when the packet is long enough to carry it, the
// authoritative scoreboard block.
type FullInfo struct {
	Major, Minor, Micro uint16

	Slots [fullSlotCount]FullPlayerSlot

	GameName     string
	MissionTitle string
	MissionID    string
	Mode         uint8
	RefuseFlag   uint8
	Difficulty   uint8
	Status       uint8
	PriorPlayers uint8
	MaxPlayers   uint8
	PlayerCount  uint8

	HasStats         bool
	KillMatrix       [8][8]int16 // row = killer slot, column = victim slot
	TotalDeaths      [8]int16
	TotalKills       [8]int16
	KillGoal         int32
	PlayTimeAllowed  int32
	LevelTime        int32
	ControlInvulTime int32
	MonitorVector    int32
	Scores           [8]int32
}

// fullSlotStride selects the per-slot stride from the total packet length.
func fullSlotStride(packetLen int) int {
	if packetLen == 519 || packetLen == 520 {
		return 12
	}
	return 14
}

func DecodeFullInfo(b []byte) (FullInfo, error) {
	stride := fullSlotStride(len(b))
	minLen := fullHeaderLen + fullSlotCount*stride + fullSettingsScalars
	if len(b) < minLen || b[0] != OpFullInfo {
		return FullInfo{}, malformed(OpFullInfo, minLen, len(b))
	}

	f := FullInfo{
		Major: binary.LittleEndian.Uint16(b[1:3]),
		Minor: binary.LittleEndian.Uint16(b[3:5]),
		Micro: binary.LittleEndian.Uint16(b[5:7]),
	}

	off := fullHeaderLen
	for i := 0; i < fullSlotCount; i++ {
		s := b[off : off+stride]
		f.Slots[i].Callsign = trimFixedString(s[0:9])
		f.Slots[i].Connected = s[9] != 0
		f.Slots[i].Rank = s[10]
		if stride == 14 {
			f.Slots[i].Color = s[12]
			f.Slots[i].MissileColor = s[13]
		}
		off += stride
	}

	settings := b[off:]
	f.GameName = trimFixedString(settings[0:16])
	f.MissionTitle = trimFixedString(settings[16:42])
	f.MissionID = trimFixedString(settings[42:51])
	f.Mode = settings[51]
	f.RefuseFlag = settings[52]
	f.Difficulty = settings[53]
	f.Status = settings[54]
	f.PriorPlayers = settings[55]
	f.MaxPlayers = settings[56]
	if len(settings) > fullSettingsScalars {
		f.PlayerCount = settings[fullSettingsScalars]
	}

	if len(settings) >= fullStatsOffset+fullStatsLen {
		f.HasStats = true
		st := settings[fullStatsOffset:]
		p := 0
		for row := 0; row < 8; row++ {
			for col := 0; col < 8; col++ {
				f.KillMatrix[row][col] = int16(binary.LittleEndian.Uint16(st[p : p+2]))
				p += 2
			}
		}
		for i := 0; i < 8; i++ {
			f.TotalDeaths[i] = int16(binary.LittleEndian.Uint16(st[p : p+2]))
			p += 2
		}
		for i := 0; i < 8; i++ {
			f.TotalKills[i] = int16(binary.LittleEndian.Uint16(st[p : p+2]))
			p += 2
		}
		f.KillGoal = int32(binary.LittleEndian.Uint32(st[p : p+4]))
		f.PlayTimeAllowed = int32(binary.LittleEndian.Uint32(st[p+4 : p+8]))
		f.LevelTime = int32(binary.LittleEndian.Uint32(st[p+8 : p+12]))
		f.ControlInvulTime = int32(binary.LittleEndian.Uint32(st[p+12 : p+16]))
		f.MonitorVector = int32(binary.LittleEndian.Uint32(st[p+16 : p+20]))
		p += 20
		for i := 0; i < 8; i++ {
			f.Scores[i] = int32(binary.LittleEndian.Uint32(st[p : p+4]))
			p += 4
		}
	}

	return f, nil
}

// EncodeFullInfo builds an opcode-3 packet with the 14-byte slot stride and a
// complete scoreboard block. Like EncodeLiteInfo it exists for tests playing
// the game side of the protocol.
func EncodeFullInfo(f FullInfo) []byte {
	const stride = 14
	total := fullHeaderLen + fullSlotCount*stride + fullStatsOffset + fullStatsLen
	b := make([]byte, total)
	b[0] = OpFullInfo
	binary.LittleEndian.PutUint16(b[1:3], f.Major)
	binary.LittleEndian.PutUint16(b[3:5], f.Minor)
	binary.LittleEndian.PutUint16(b[5:7], f.Micro)

	off := fullHeaderLen
	for i := 0; i < fullSlotCount; i++ {
		s := b[off : off+stride]
		putFixedString(s[0:9], f.Slots[i].Callsign)
		if f.Slots[i].Connected {
			s[9] = 1
		}
		s[10] = f.Slots[i].Rank
		s[12] = f.Slots[i].Color
		s[13] = f.Slots[i].MissileColor
		off += stride
	}

	settings := b[off:]
	putFixedString(settings[0:16], f.GameName)
	putFixedString(settings[16:42], f.MissionTitle)
	putFixedString(settings[42:51], f.MissionID)
	settings[51] = f.Mode
	settings[52] = f.RefuseFlag
	settings[53] = f.Difficulty
	settings[54] = f.Status
	settings[55] = f.PriorPlayers
	settings[56] = f.MaxPlayers
	settings[fullSettingsScalars] = f.PlayerCount

	st := settings[fullStatsOffset:]
	p := 0
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			binary.LittleEndian.PutUint16(st[p:p+2], uint16(f.KillMatrix[row][col]))
			p += 2
		}
	}
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(st[p:p+2], uint16(f.TotalDeaths[i]))
		p += 2
	}
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(st[p:p+2], uint16(f.TotalKills[i]))
		p += 2
	}
	binary.LittleEndian.PutUint32(st[p:p+4], uint32(f.KillGoal))
	binary.LittleEndian.PutUint32(st[p+4:p+8], uint32(f.PlayTimeAllowed))
	binary.LittleEndian.PutUint32(st[p+8:p+12], uint32(f.LevelTime))
	binary.LittleEndian.PutUint32(st[p+12:p+16], uint32(f.ControlInvulTime))
	binary.LittleEndian.PutUint32(st[p+16:p+20], uint32(f.MonitorVector))
	p += 20
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(st[p:p+4], uint32(f.Scores[i]))
		p += 4
	}

	return b
}
