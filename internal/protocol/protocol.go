// Package protocol implements the PyTracker-compatible wire format spoken by
// DXX-Redux/Rebirth game hosts. All multi-byte integers are little-endian;
// strings are fixed-width, NUL-padded ASCII. Codecs are pure: they never
// touch the network.
package protocol

import "fmt"

// Opcodes. Opcode 1 is shared between UNREGISTER (5 bytes) and VERSION-DENY
// (9 bytes); opcode 2 is shared between the ingress game-list request
// (3 bytes) and the egress full-info request (13 bytes). Both are
// disambiguated by length.
const (
	OpRegister     = 0
	OpUnregister   = 1
	OpGameList     = 2
	OpFullInfo     = 3
	OpLiteInfoReq  = 4
	OpLiteInfo     = 5
	OpPData        = 13
	OpMDataNorm    = 19
	OpMDataAck     = 20
	OpRegisterAck  = 21
	OpGameListResp = 22
	OpObsData      = 25
	OpGamelogKill  = 31
	OpGamelogChat  = 32
	OpWebUIPing    = 99
)

// DXX major versions carried in REGISTER and game-list requests.
const (
	VersionD1 = 1
	VersionD2 = 2
)

// MalformedPacketError reports a packet whose length or opcode does not
// match the layout for its message type.
type MalformedPacketError struct {
	Opcode   uint8
	Expected int
	Actual   int
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet: opcode %d, expected %d bytes, got %d", e.Opcode, e.Expected, e.Actual)
}

func malformed(op uint8, expected, actual int) error {
	return &MalformedPacketError{Opcode: op, Expected: expected, Actual: actual}
}

// ReqID returns the 4-byte ASCII request identifier for a DXX major version.
func ReqID(version uint8) string {
	if version == VersionD2 {
		return "D2XR"
	}
	return "D1XR"
}

// trimFixedString cuts a fixed-width field at the first NUL and strips any
// byte outside printable ASCII (0x20-0x7E).
func trimFixedString(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	out := make([]byte, 0, end)
	for _, c := range b[:end] {
		if c >= 0x20 && c <= 0x7E {
			out = append(out, c)
		}
	}
	return string(out)
}

// putFixedString writes s into a fixed-width NUL-padded field.
func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
