// Package notify relays kill-feed events to a Discord channel. Entirely
// optional: without a bot token the relay is disabled and the tracker runs
// as usual.
package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
)

const killfeedColor = 16761867 // orange

// DiscordRelay posts kill embeds and plain-text match-over notices to one
// channel.
type DiscordRelay struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordRelay connects the bot session. Returns (nil, nil) when token or
// channel are unset, meaning the relay is disabled.
func NewDiscordRelay(token, channelID string) (*DiscordRelay, error) {
	if token == "" || channelID == "" {
		return nil, nil
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord session: %w", err)
	}
	log.Info().Str("channel", channelID).Msg("Discord kill-feed relay connected")
	return &DiscordRelay{session: session, channelID: channelID}, nil
}

// Run forwards events until the context ends. Send failures are logged and
// never propagate.
func (r *DiscordRelay) Run(ctx context.Context, em *event_manager.EventManager) error {
	sub := em.Subscribe([]event_manager.EventType{
		event_manager.EventTypeGameEvent,
		event_manager.EventTypeGameRemoved,
	}, 100)
	defer em.Unsubscribe(sub.ID)
	defer r.session.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Channel:
			if !ok {
				return nil
			}
			r.handle(e)
		}
	}
}

func (r *DiscordRelay) handle(e event_manager.Event) {
	switch e.Type {
	case event_manager.EventTypeGameEvent:
		ev, ok := e.Data.(events.Event)
		if !ok || ev.Kind != events.KindKill {
			return
		}
		r.sendKill(ev)
	case event_manager.EventTypeGameRemoved:
		r.sendText(fmt.Sprintf("Match over: %v", e.Data))
	}
}

func (r *DiscordRelay) sendKill(ev events.Event) {
	title := fmt.Sprintf("%s killed %s", ev.Killer, ev.Victim)
	if ev.Suicide() {
		title = fmt.Sprintf("%s self-destructed", ev.Victim)
	}
	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: killfeedColor,
	}
	if ev.Weapon != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Weapon",
			Value:  ev.Weapon,
			Inline: true,
		})
	}
	_, err := r.session.ChannelMessageSendComplex(r.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send Discord kill-feed message")
	}
}

func (r *DiscordRelay) sendText(text string) {
	if _, err := r.session.ChannelMessageSend(r.channelID, text); err != nil {
		log.Warn().Err(err).Msg("Failed to send Discord message")
	}
}
