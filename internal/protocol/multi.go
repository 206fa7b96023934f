package protocol

// Submessage tags of interest inside MDATA/OBSDATA multibufs. Everything
// else is movement or state sync the tracker has no use for.
const (
	MultiTagKill       = 3
	MultiTagExplode    = 5
	MultiTagMessage    = 6
	MultiTagQuit       = 7
	MultiTagObsMessage = 61
)

// SubMessage is one extracted multibuf submessage.
type SubMessage struct {
	Tag    uint8
	Killer uint8
	Victim uint8
	Slot   uint8
	Sender uint8
	Text   string
}

// MData is the framing common to opcodes 19, 20 and 25.
type MData struct {
	Token      uint32
	SenderSlot uint8
	PktNum     uint32 // opcode 20 only
	Payload    []byte
}

func DecodeMData(b []byte) (MData, error) {
	if len(b) < 6 {
		var op uint8
		if len(b) > 0 {
			op = b[0]
		}
		return MData{}, malformed(op, 6, len(b))
	}
	switch b[0] {
	case OpMDataAck:
		if len(b) < 10 {
			return MData{}, malformed(OpMDataAck, 10, len(b))
		}
		return MData{
			Token:      le32(b[1:5]),
			SenderSlot: b[5],
			PktNum:     le32(b[6:10]),
			Payload:    b[10:],
		}, nil
	case OpMDataNorm, OpObsData:
		return MData{
			Token:      le32(b[1:5]),
			SenderSlot: b[5],
			Payload:    b[6:],
		}, nil
	default:
		return MData{}, malformed(b[0], 6, len(b))
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// ScanMulti walks a multibuf and extracts the submessages the tracker
// understands. Submessage lengths are tag-specific, so scanning stops at the
// first unknown tag.
func ScanMulti(buf []byte) []SubMessage {
	var out []SubMessage
	i := 0
	for i < len(buf) {
		switch buf[i] {
		case MultiTagKill:
			if i+3 > len(buf) {
				return out
			}
			out = append(out, SubMessage{Tag: MultiTagKill, Killer: buf[i+1], Victim: buf[i+2]})
			i += 3
		case MultiTagExplode:
			if i+2 > len(buf) {
				return out
			}
			out = append(out, SubMessage{Tag: MultiTagExplode, Slot: buf[i+1]})
			i += 2
		case MultiTagQuit:
			if i+2 > len(buf) {
				return out
			}
			out = append(out, SubMessage{Tag: MultiTagQuit, Slot: buf[i+1]})
			i += 2
		case MultiTagMessage, MultiTagObsMessage:
			if i+2 > len(buf) {
				return out
			}
			tag := buf[i]
			sender := buf[i+1]
			j := i + 2
			for j < len(buf) && buf[j] != 0 {
				j++
			}
			out = append(out, SubMessage{Tag: tag, Sender: sender, Text: trimFixedString(buf[i+2 : j])})
			if j < len(buf) {
				j++ // consume the terminator
			}
			i = j
		default:
			return out
		}
	}
	return out
}
