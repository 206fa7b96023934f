// Package gamelog parses textual DXX gamelog streams into typed events.
// Parsing is line-oriented and regex-driven; patterns are compiled once and
// matched case-insensitively. The parser is restartable: it keeps no state
// between calls, so a truncated input yields correct partial output.
package gamelog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
)

// lineParser pairs a compiled pattern with its event builder, one per known
// gamelog line shape.
type lineParser struct {
	regex   *regexp.Regexp
	onMatch func(args []string, micros uint64, b *builder)
}

// Optional game-time prefix, seconds with fractional part: "[123.456] ".
var timePattern = regexp.MustCompile(`^\[(\d+(?:\.\d+)?)\]\s*`)

// youPattern recognizes first-person action lines, used when inferring an
// identity from an unattributed stream.
var youPattern = regexp.MustCompile(`(?i)^you(?:rself)?\b`)

var selfTokens = map[string]bool{
	"you":        true,
	"yourself":   true,
	"himself":    true,
	"herself":    true,
	"themself":   true,
	"themselves": true,
}

var joinPattern = regexp.MustCompile(`(?i)^'(.+?)' is joining the game\.?$`)

// lineParsers are tried in order; first match wins. The chat pattern is last
// because it is the loosest.
var lineParsers = []lineParser{
	{
		regex: joinPattern,
		onMatch: func(args []string, micros uint64, b *builder) {
			e := b.event(events.KindJoin, micros)
			e.Sender = b.rewrite(args[1])
			b.add(e)
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) killed (.+?) with (?:a |an |the )?(.+?)\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			killer := b.rewrite(args[1])
			victim := b.rewrite(args[2])
			e := b.event(events.KindKill, micros)
			e.Killer = killer
			e.Victim = victim
			e.Weapon = strings.TrimSpace(args[3])
			b.add(e)
			b.applyKill(killer, victim, e.Weapon)
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) killed (himself|herself|themself|themselves|yourself)\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			who := b.rewrite(args[1])
			e := b.event(events.KindKill, micros)
			e.Killer = who
			e.Victim = who
			b.add(e)
			b.applyKill(who, who, "")
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) died\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			who := b.rewrite(args[1])
			e := b.event(events.KindDeath, micros)
			e.Victim = who
			b.add(e)
			st := b.stats(who)
			st.Deaths++
			st.KillStreak = 0
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) (?:has left|is leaving) the game\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			e := b.event(events.KindQuit, micros)
			e.Sender = b.rewrite(args[1])
			b.add(e)
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(?:the )?reactor (?:has been )?destroyed!?\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			b.add(b.event(events.KindReactor, micros))
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) (?:has )?escaped(?: the mine| through the exit tunnel)?!?\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			e := b.event(events.KindEscape, micros)
			e.Sender = b.rewrite(args[1])
			b.add(e)
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) (?:has )?captured the (?:blue |red )?flag!?\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			e := b.event(events.KindFlagCaptured, micros)
			e.Sender = b.rewrite(args[1])
			b.add(e)
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^(.+?) (?:has )?reached the kill goal!?\.?$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			e := b.event(events.KindKillGoal, micros)
			e.Sender = b.rewrite(args[1])
			b.add(e)
		},
	},
	{
		regex: regexp.MustCompile(`(?i)^([^:]+): (.+)$`),
		onMatch: func(args []string, micros uint64, b *builder) {
			e := b.event(events.KindChat, micros)
			e.Sender = b.rewrite(args[1])
			e.Text = strings.TrimSpace(args[2])
			b.add(e)
		},
	},
}

// PlayerStats is the per-identity running summary accumulated while parsing.
type PlayerStats struct {
	Kills         int            `json:"kills"`
	Deaths        int            `json:"deaths"`
	Suicides      int            `json:"suicides"`
	KillStreak    int            `json:"killStreak"`
	MaxKillStreak int            `json:"maxKillStreak"`
	Weapons       map[string]int `json:"weapons"`
	Victims       map[string]int `json:"victims"`
	Killers       map[string]int `json:"killers"`
}

// Result is the outcome of parsing one gamelog text.
type Result struct {
	Identity    string
	Provisional bool
	Events      []events.Event
	Unknown     []string
	Stats       map[string]*PlayerStats
}

type builder struct {
	identity string
	source   string
	result   *Result
}

func (b *builder) event(kind events.Kind, micros uint64) events.Event {
	e := events.New(kind)
	e.GameTimeMicros = micros
	e.Source = b.source
	return e
}

func (b *builder) add(e events.Event) {
	b.result.Events = append(b.result.Events, e)
}

// rewrite replaces first- and third-person self references with the bound
// identity so that streams from different uploaders merge cleanly.
func (b *builder) rewrite(name string) string {
	name = strings.TrimSpace(name)
	if selfTokens[strings.ToLower(name)] && b.identity != "" {
		return b.identity
	}
	return name
}

func (b *builder) stats(name string) *PlayerStats {
	st, ok := b.result.Stats[name]
	if !ok {
		st = &PlayerStats{
			Weapons: make(map[string]int),
			Victims: make(map[string]int),
			Killers: make(map[string]int),
		}
		b.result.Stats[name] = st
	}
	return st
}

func (b *builder) applyKill(killer, victim, weapon string) {
	if strings.EqualFold(killer, victim) {
		st := b.stats(victim)
		st.Suicides++
		st.Deaths++
		st.KillStreak = 0
		return
	}
	ks := b.stats(killer)
	ks.Kills++
	ks.KillStreak++
	if ks.KillStreak > ks.MaxKillStreak {
		ks.MaxKillStreak = ks.KillStreak
	}
	ks.Victims[victim]++
	if weapon != "" {
		ks.Weapons[weapon]++
	}
	vs := b.stats(victim)
	vs.Deaths++
	vs.KillStreak = 0
	vs.Killers[killer]++
}

// Parse runs the line parsers over a gamelog text. identity, when non-empty,
// is substituted for "You"/"Yourself" participants; when empty, the parser
// tries to infer one from the stream and flags the result provisional.
func Parse(data []byte, identity string) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("gamelog is not valid UTF-8")
	}

	res := &Result{
		Identity: identity,
		Stats:    make(map[string]*PlayerStats),
	}

	lines := strings.Split(string(data), "\n")

	if identity == "" {
		if inferred, ok := inferIdentity(lines); ok {
			res.Identity = inferred
			res.Provisional = true
		}
	}

	b := &builder{identity: res.Identity, source: "gamelog", result: res}

	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		var micros uint64
		if m := timePattern.FindStringSubmatch(line); m != nil {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
				micros = uint64(secs * 1e6)
			}
			line = line[len(m[0]):]
			if line == "" {
				continue
			}
		}
		matched := false
		for _, p := range lineParsers {
			if args := p.regex.FindStringSubmatch(line); args != nil {
				p.onMatch(args, micros, b)
				matched = true
				break
			}
		}
		if !matched {
			res.Unknown = append(res.Unknown, line)
		}
	}

	return res, nil
}

// inferIdentity looks for a single joining player plus at least one
// first-person action line.
func inferIdentity(lines []string) (string, bool) {
	var name string
	var joins int
	var youAction bool
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := timePattern.FindStringSubmatch(line); m != nil {
			line = line[len(m[0]):]
		}
		if m := joinPattern.FindStringSubmatch(line); m != nil {
			joins++
			name = m[1]
		} else if youPattern.MatchString(line) {
			youAction = true
		}
	}
	if joins == 1 && youAction && name != "" {
		return name, true
	}
	return "", false
}
