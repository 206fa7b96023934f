package protocol

import "fmt"

var modeNames = []string{
	"Anarchy",
	"Team Anarchy",
	"Robo Anarchy",
	"Cooperative",
	"Capture Flag",
	"Hoard",
	"Team Hoard",
	"Bounty",
}

// ModeName maps the netgame mode enum to its display name.
func ModeName(mode uint8) string {
	if int(mode) < len(modeNames) {
		return modeNames[mode]
	}
	return fmt.Sprintf("Mode %d", mode)
}

var statusNames = []string{
	"Menu",
	"Playing",
	"Between",
	"EndLevel",
	"Forming",
}

// StatusName maps the netgame status enum to its display name.
func StatusName(status uint8) string {
	if int(status) < len(statusNames) {
		return statusNames[status]
	}
	return fmt.Sprintf("Status %d", status)
}

// weaponNames follows the DXX weapon id table shared by both games; D2-only
// weapons occupy the 28+ range.
var weaponNames = map[uint8]string{
	0:  "Laser",
	1:  "Laser",
	2:  "Laser",
	3:  "Laser",
	8:  "Concussion Missile",
	9:  "Flare",
	11: "Vulcan Cannon",
	12: "Spreadfire Cannon",
	13: "Plasma Cannon",
	14: "Fusion Cannon",
	15: "Homing Missile",
	16: "Proximity Bomb",
	17: "Smart Missile",
	18: "Mega Missile",
	28: "Super Laser",
	30: "Gauss Cannon",
	32: "Helix Cannon",
	33: "Phoenix Cannon",
	34: "Omega Cannon",
	35: "Flash Missile",
	36: "Guided Missile",
	37: "Smart Mine",
	39: "Mercury Missile",
	40: "Earthshaker Missile",
}

// WeaponName maps a gamelog weapon id to its display name.
func WeaponName(weaponType, weaponID uint8) string {
	if name, ok := weaponNames[weaponID]; ok {
		return name
	}
	if weaponType != 0 {
		return fmt.Sprintf("Weapon %d/%d", weaponType, weaponID)
	}
	return fmt.Sprintf("Weapon %d", weaponID)
}
