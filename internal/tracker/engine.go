// Package tracker is the UDP protocol engine: it owns the tracker socket,
// classifies datagrams by opcode, drives the registry, and emits probes and
// acknowledgements. One receive loop handles packets in arrival order; all
// sends happen outside the registry lock.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Code-6dof/DXX-Dashboard/internal/aggregator"
	"github.com/Code-6dof/DXX-Dashboard/internal/archive"
	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/protocol"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
	"github.com/Code-6dof/DXX-Dashboard/internal/snapshot"
)

const (
	pollInterval    = 5 * time.Second
	cleanupInterval = 60 * time.Second
	ackRetransmit   = 25 * time.Millisecond
	ackCount        = 3
	maxPacketSize   = 2048
	archiveTimeout  = 30 * time.Second
)

// Engine ties the socket to the registry and event pipeline.
type Engine struct {
	conn     *net.UDPConn
	registry *registry.Registry
	stores   *events.Stores
	clients  *gamelog.ClientManager
	em       *event_manager.EventManager
	sink     archive.Sink
	writer   *snapshot.Writer

	// send is swappable so tests can run the engine without a socket.
	send func(b []byte, addr *net.UDPAddr)

	startTime time.Time
}

// Deps carries everything an Engine needs besides its socket.
type Deps struct {
	Registry *registry.Registry
	Stores   *events.Stores
	Clients  *gamelog.ClientManager
	Events   *event_manager.EventManager
	Sink     archive.Sink
	Writer   *snapshot.Writer
}

// NewEngine binds the tracker UDP socket.
func NewEngine(port int, deps Deps) (*Engine, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}
	e := newEngine(deps)
	e.conn = conn
	e.send = func(b []byte, addr *net.UDPAddr) {
		if _, err := conn.WriteToUDP(b, addr); err != nil {
			log.Warn().Err(err).Str("addr", addr.String()).Msg("UDP send failed")
		}
	}
	log.Info().Int("port", port).Msg("UDP tracker listening")
	return e, nil
}

func newEngine(deps Deps) *Engine {
	return &Engine{
		registry:  deps.Registry,
		stores:    deps.Stores,
		clients:   deps.Clients,
		em:        deps.Events,
		sink:      deps.Sink,
		writer:    deps.Writer,
		startTime: time.Now(),
	}
}

// Run receives datagrams until the context ends. A failure in one packet
// handler never takes the loop down.
func (e *Engine) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		e.conn.Close()
	}()

	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Warn().Err(err).Msg("UDP read failed")
			continue
		}
		if n == 0 {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		e.handlePacket(pkt, addr)
	}
}

// handlePacket classifies one datagram by its leading opcode byte.
func (e *Engine) handlePacket(b []byte, addr *net.UDPAddr) {
	if protocol.IsWebUIPing(b) {
		e.send(protocol.EncodePong(uint32(time.Now().Unix())), addr)
		return
	}

	switch b[0] {
	case protocol.OpRegister:
		e.handleRegister(b, addr)
	case protocol.OpUnregister:
		e.handleUnregisterOrDeny(b, addr)
	case protocol.OpGameList:
		e.handleGameListReq(b, addr)
	case protocol.OpFullInfo:
		e.handleFullInfo(b, addr)
	case protocol.OpLiteInfo:
		e.handleLiteInfo(b, addr)
	case protocol.OpPData:
		// position stream, nothing to track
	case protocol.OpMDataNorm, protocol.OpMDataAck, protocol.OpObsData:
		e.handleMData(b, addr)
	case protocol.OpGamelogKill:
		e.handleGamelogKill(b, addr)
	case protocol.OpGamelogChat:
		e.handleGamelogChat(b, addr)
	default:
		log.Debug().Uint8("opcode", b[0]).Str("addr", addr.String()).Int("len", len(b)).Msg("Unknown opcode")
	}
}

func (e *Engine) handleRegister(b []byte, addr *net.UDPAddr) {
	reg, err := protocol.DecodeRegister(b)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed REGISTER")
		return
	}
	if reg.GamePort < 1024 {
		log.Warn().Uint16("port", reg.GamePort).Str("addr", addr.String()).Msg("REGISTER with privileged game port dropped")
		return
	}

	m, created, dropped := e.registry.UpsertOnRegister(addr, reg)
	if dropped != nil {
		// game-id changed under the same key: the old lifecycle is over
		e.stores.Delete(dropped.Key.String())
		e.em.Publish(event_manager.EventTypeGameRemoved, map[string]interface{}{
			"key":    dropped.Key.String(),
			"gameId": dropped.GameID,
			"reason": "superseded",
		})
		log.Info().Str("key", dropped.Key.String()).Uint32("oldGameID", dropped.GameID).Uint32("newGameID", reg.GameID).Msg("Game-id collision, dropped predecessor")
	}
	if created {
		e.stores.GetOrCreate(m.Key.String())
		log.Info().Str("key", m.Key.String()).Uint32("gameID", m.GameID).Uint8("version", m.Version).Msg("Match registered")
	}

	// Probe the announced game port right away; confirmation rides on the
	// lite response.
	e.sendLiteProbe(m)
}

func (e *Engine) handleUnregisterOrDeny(b []byte, addr *net.UDPAddr) {
	switch len(b) {
	case 5:
		gameID, err := protocol.DecodeUnregister(b)
		if err != nil {
			log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed UNREGISTER")
			return
		}
		removed := e.registry.RemoveByGameID(addr.IP.String(), gameID)
		if removed == nil {
			log.Debug().Uint32("gameID", gameID).Str("addr", addr.String()).Msg("UNREGISTER for unknown game")
			return
		}
		store, _ := e.stores.Get(removed.Key.String())
		var evs []events.Event
		if store != nil {
			evs = store.Timeline()
		}
		final := archive.Finalize(e.gameData(*removed), time.Now())
		e.stores.Delete(removed.Key.String())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := e.sink.Save(ctx, final, evs); err != nil {
				log.Error().Err(err).Str("archiveId", final.ArchiveID).Msg("Archive sink failed")
			}
		}()
		e.em.Publish(event_manager.EventTypeGameRemoved, map[string]interface{}{
			"key":    removed.Key.String(),
			"gameId": removed.GameID,
			"reason": "unregistered",
		})
		log.Info().Str("key", removed.Key.String()).Uint32("gameID", gameID).Msg("Match unregistered")
		e.writeSnapshot()
	case 9:
		deny, err := protocol.DecodeVersionDeny(b)
		if err != nil {
			log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed VERSION-DENY")
			return
		}
		if n := e.registry.ApplyVersionDeny(addr.IP.String(), deny.NetgameProto); n > 0 {
			log.Info().Uint16("proto", deny.NetgameProto).Str("ip", addr.IP.String()).Int("records", n).Msg("Learned netgame protocol")
		}
	default:
		log.Warn().Int("len", len(b)).Str("addr", addr.String()).Msg("Malformed opcode-1 frame")
	}
}

func (e *Engine) handleGameListReq(b []byte, addr *net.UDPAddr) {
	version, err := protocol.DecodeGameListReq(b)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed GAME-LIST request")
		return
	}
	for _, m := range e.registry.Confirmed(uint8(version)) {
		entry := protocol.GameListEntry{
			IP:     m.Key.IP,
			IPv6:   m.SourceAddr != nil && m.SourceAddr.IP.To4() == nil,
			Port:   m.Key.Port,
			Major:  m.Major,
			Minor:  m.Minor,
			Micro:  m.Micro,
			GameID: m.GameID,
		}
		if m.HasLite {
			entry.GameName = m.Lite.GameName
			entry.MissionTitle = m.Lite.MissionTitle
			entry.MissionID = m.Lite.MissionID
			entry.Level = m.Lite.Level
			entry.Mode = m.Lite.Mode
			entry.RefuseFlag = m.Lite.RefuseFlag
			entry.Difficulty = m.Lite.Difficulty
			entry.Status = m.Lite.Status
			entry.PlayerCount = m.Lite.PlayerCount
			entry.MaxPlayers = m.Lite.MaxPlayers
			entry.Flags = m.Lite.Flags
		}
		e.send(protocol.EncodeGameListEntry(entry), addr)
	}
}

func (e *Engine) handleLiteInfo(b []byte, addr *net.UDPAddr) {
	m, ok := e.registry.FindByAddr(addr.IP.String(), uint16(addr.Port))
	if !ok {
		log.Warn().Str("addr", addr.String()).Msg("LITE-INFO from unknown source")
		return
	}
	lite, err := protocol.DecodeLiteInfo(b)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed LITE-INFO")
		return
	}
	updated, confirmedNow, ok := e.registry.ApplyLite(m.Key, lite)
	if !ok {
		log.Warn().Str("key", m.Key.String()).Uint32("gameID", lite.GameID).Msg("LITE-INFO game-id mismatch, dropped")
		return
	}
	e.afterInfoApply(updated, confirmedNow)
}

func (e *Engine) handleFullInfo(b []byte, addr *net.UDPAddr) {
	m, ok := e.registry.FindByAddr(addr.IP.String(), uint16(addr.Port))
	if !ok {
		log.Warn().Str("addr", addr.String()).Msg("FULL-INFO from unknown source")
		return
	}
	full, err := protocol.DecodeFullInfo(b)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed FULL-INFO")
		return
	}
	updated, confirmedNow, ok := e.registry.ApplyFull(m.Key, full)
	if !ok {
		return
	}
	e.afterInfoApply(updated, confirmedNow)
}

// afterInfoApply fires the register-ACK triplet on the pending->confirmed
// edge and publishes the mutation.
func (e *Engine) afterInfoApply(m registry.Match, confirmedNow bool) {
	if confirmedNow {
		e.sendRegisterAck(m.SourceAddr)
		e.em.Publish(event_manager.EventTypeGameNew, e.gameData(m))
		log.Info().Str("key", m.Key.String()).Str("name", m.GameName()).Msg("Match confirmed")
	} else {
		e.em.Publish(event_manager.EventTypeGameUpdate, e.gameData(m))
	}
	e.writeSnapshot()
}

func (e *Engine) handleMData(b []byte, addr *net.UDPAddr) {
	m, ok := e.registry.FindByAddr(addr.IP.String(), uint16(addr.Port))
	if !ok {
		log.Debug().Str("addr", addr.String()).Msg("MDATA from unknown source")
		return
	}
	md, err := protocol.DecodeMData(b)
	if err != nil {
		log.Debug().Err(err).Str("addr", addr.String()).Msg("Malformed MDATA")
		return
	}

	store := e.stores.GetOrCreate(m.Key.String())
	e.registry.Touch(m.Key)
	for _, sub := range protocol.ScanMulti(md.Payload) {
		var ev events.Event
		switch sub.Tag {
		case protocol.MultiTagKill:
			ev = events.New(events.KindKill)
			ev.KillerSlot = int(sub.Killer)
			ev.VictimSlot = int(sub.Victim)
			ev.Killer = m.SlotName(ev.KillerSlot)
			ev.Victim = m.SlotName(ev.VictimSlot)
		case protocol.MultiTagExplode:
			ev = events.New(events.KindDeath)
			ev.VictimSlot = int(sub.Slot)
			ev.Victim = m.SlotName(ev.VictimSlot)
		case protocol.MultiTagQuit:
			ev = events.New(events.KindQuit)
			ev.Sender = m.SlotName(int(sub.Slot))
		case protocol.MultiTagMessage, protocol.MultiTagObsMessage:
			ev = events.New(events.KindChat)
			ev.Text = sub.Text
			ev.Sender = m.SlotName(int(sub.Sender))
			ev.IsObserver = sub.Tag == protocol.MultiTagObsMessage
			if ev.IsObserver && ev.Sender == "" {
				ev.Sender = fmt.Sprintf("Observer %d", sub.Sender+1)
			}
		default:
			continue
		}
		ev.Source = "udp"
		store.Append(ev)
		e.em.Publish(event_manager.EventTypeGameEvent, ev)
	}
}

func (e *Engine) handleGamelogKill(b []byte, addr *net.UDPAddr) {
	kill, err := protocol.DecodeGamelogKill(b)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed GAMELOG-KILL")
		return
	}
	// These packets leave from an ephemeral port; the IP is the anchor.
	m, ok := e.registry.FindByAddr(addr.IP.String(), uint16(addr.Port))
	if !ok {
		log.Warn().Str("addr", addr.String()).Msg("GAMELOG-KILL from unknown source")
		return
	}

	ev := events.New(events.KindKill)
	ev.GameTimeMicros = kill.GameTimeMicros
	ev.KillerSlot = int(kill.KillerSlot)
	ev.VictimSlot = int(kill.VictimSlot)
	ev.Killer = m.SlotName(ev.KillerSlot)
	ev.Victim = m.SlotName(ev.VictimSlot)
	ev.Weapon = protocol.WeaponName(kill.WeaponType, kill.WeaponID)
	ev.Source = "udp"

	store := e.stores.GetOrCreate(m.Key.String())
	store.Append(ev)
	store.MarkTimeless(ev)
	e.registry.Touch(m.Key)

	e.em.Publish(event_manager.EventTypeGameEvent, ev)
	e.writeSnapshot()
}

func (e *Engine) handleGamelogChat(b []byte, addr *net.UDPAddr) {
	chat, err := protocol.DecodeGamelogChat(b)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("Malformed GAMELOG-CHAT")
		return
	}
	m, ok := e.registry.FindByAddr(addr.IP.String(), uint16(addr.Port))
	if !ok {
		log.Warn().Str("addr", addr.String()).Msg("GAMELOG-CHAT from unknown source")
		return
	}

	ev := events.New(events.KindChat)
	ev.GameTimeMicros = chat.GameTimeMicros
	ev.Text = chat.Message
	ev.Sender = m.SlotName(int(chat.SenderSlot))
	ev.IsObserver = chat.SenderSlot >= 8
	if ev.IsObserver {
		ev.Sender = fmt.Sprintf("Observer %d", chat.SenderSlot-7)
	}
	ev.Source = "udp"

	store := e.stores.GetOrCreate(m.Key.String())
	store.Append(ev)
	store.MarkTimeless(ev)
	e.registry.Touch(m.Key)

	e.em.Publish(event_manager.EventTypeGameEvent, ev)
	e.writeSnapshot()
}

// sendLiteProbe asks the announced game port for lite info.
func (e *Engine) sendLiteProbe(m registry.Match) {
	probe := protocol.EncodeLiteInfoReq(protocol.LiteInfoReq{
		Version: m.Version,
		Major:   m.Major,
		Minor:   m.Minor,
		Micro:   m.Micro,
	})
	e.send(probe, &net.UDPAddr{IP: net.ParseIP(m.Key.IP), Port: int(m.Key.Port)})
}

// sendFullProbe asks for the full player table. With the protocol still
// unknown it goes out as proto=0; the game answers with a version-deny that
// teaches the real number.
func (e *Engine) sendFullProbe(m registry.Match) {
	probe := protocol.EncodeFullInfoReq(protocol.FullInfoReq{
		Version:      m.Version,
		Major:        m.Major,
		Minor:        m.Minor,
		Micro:        m.Micro,
		NetgameProto: m.NetgameProto,
	})
	e.send(probe, &net.UDPAddr{IP: net.ParseIP(m.Key.IP), Port: int(m.Key.Port)})
}

// sendRegisterAck fires the opcode-21 triplet at 0/25/50 ms to the address
// the REGISTER came from, which may not be the game port.
func (e *Engine) sendRegisterAck(addr *net.UDPAddr) {
	if addr == nil {
		return
	}
	go func() {
		for i := 0; i < ackCount; i++ {
			if i > 0 {
				time.Sleep(ackRetransmit)
			}
			e.send(protocol.EncodeRegisterAck(), addr)
		}
	}()
}

// gameData is the WebSocket payload describing one match.
func (e *Engine) gameData(m registry.Match) snapshot.GameSnapshot {
	store, _ := e.stores.Get(m.Key.String())
	view := aggregator.Merge(m, store, e.clients.Streams())
	return snapshot.BuildGame(m, view)
}

// writeSnapshot rewrites the dashboard JSON. Failures are non-critical.
func (e *Engine) writeSnapshot() {
	if e.writer == nil {
		return
	}
	doc := snapshot.BuildDocument(e.registry, e.stores, e.clients)
	if err := e.writer.Write(doc); err != nil {
		log.Debug().Err(err).Msg("Snapshot write failed")
	}
}

// PollLoop issues the appropriate probe per record every poll tick and
// refreshes the snapshot.
func (e *Engine) PollLoop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, m := range e.registry.All() {
				switch m.Status {
				case registry.StatusPending:
					e.sendLiteProbe(m)
				case registry.StatusConfirmed:
					e.sendFullProbe(m)
				}
			}
			e.em.Publish(event_manager.EventTypeGameSummary, e.digestData())
			e.writeSnapshot()
		}
	}
}

// CleanupLoop reaps expired records and hands each one to the archive sink
// exactly once.
func (e *Engine) CleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.reap(time.Now())
		}
	}
}

func (e *Engine) reap(now time.Time) {
	for _, m := range e.registry.ReapExpired(now) {
		key := m.Key.String()
		store, _ := e.stores.Get(key)
		var evs []events.Event
		if store != nil {
			evs = store.Timeline()
		}
		final := archive.Finalize(e.gameData(m), now)
		e.stores.Delete(key)

		e.em.Publish(event_manager.EventTypeGameRemoved, map[string]interface{}{
			"key":    key,
			"gameId": m.GameID,
			"reason": "expired",
		})
		log.Info().Str("key", key).Uint32("gameID", m.GameID).Msg("Match expired, archiving")

		// fire and forget; a sink failure never stalls the tracker
		go func(final archive.FinalizedMatch, evs []events.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := e.sink.Save(ctx, final, evs); err != nil {
				log.Error().Err(err).Str("archiveId", final.ArchiveID).Msg("Archive sink failed")
			}
		}(final, evs)
	}
	e.writeSnapshot()
}

// digestData is the aggregator digest payload for game_summary frames.
func (e *Engine) digestData() interface{} {
	return snapshot.BuildDigest(aggregator.Digest(e.clients.Streams()))
}

// Uptime reports how long the engine has been running.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.startTime)
}
