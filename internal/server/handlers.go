package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"

	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
)

// Status reports liveness, the number of live matches, and uptime seconds.
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"activeGames": s.Dependencies.Registry.Count(),
		"uptime":      int64(time.Since(s.Dependencies.StartTime).Seconds()),
	})
}

// Stats reports gamelog parsing throughput.
func (s *Server) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Dependencies.Clients.Metrics().Snapshot())
}

// MatchEvents returns the raw event buffers for one match key. Unknown keys
// yield empty arrays rather than an error so dashboards can poll freely.
func (s *Server) MatchEvents(c *gin.Context) {
	key := c.Param("key")
	parsed, err := registry.ParseKey(key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match key"})
		return
	}

	resp := gin.H{
		"gameId":   uint32(0),
		"killFeed": []events.Event{},
		"chat":     []events.Event{},
		"timeline": []events.Event{},
	}
	if m, ok := s.Dependencies.Registry.Find(parsed); ok {
		resp["gameId"] = m.GameID
	}
	if store, ok := s.Dependencies.Stores.Get(key); ok {
		resp["killFeed"] = store.KillFeed()
		resp["chat"] = store.Chat()
		resp["timeline"] = store.Timeline()
		resp["startTime"] = store.StartTime()
	}
	c.JSON(http.StatusOK, resp)
}

type gamelogUpload struct {
	PlayerName string `json:"playerName"`
	Content    string `json:"content"`
}

func (u gamelogUpload) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.PlayerName, validation.Required, validation.Length(1, 64)),
		validation.Field(&u.Content, validation.Required),
	)
}

func (s *Server) bindUpload(c *gin.Context) (gamelogUpload, bool) {
	var upload gamelogUpload
	if err := c.ShouldBindJSON(&upload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return upload, false
	}
	if err := upload.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return upload, false
	}
	return upload, true
}

// GamelogReplace swaps a player's textual stream for the uploaded content.
func (s *Server) GamelogReplace(c *gin.Context) {
	upload, ok := s.bindUpload(c)
	if !ok {
		return
	}

	received, err := s.Dependencies.Clients.Replace(upload.PlayerName, upload.Content)
	if err != nil {
		log.Error().Err(err).Str("player", upload.PlayerName).Msg("Failed to parse uploaded gamelog")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.Dependencies.EventManager.Publish(event_manager.EventTypeGameSummary, gin.H{
		"player":         upload.PlayerName,
		"eventsReceived": received,
	})

	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"eventsReceived": received,
		"totalClients":   s.Dependencies.Clients.Count(),
	})
}

// GamelogAppend appends an upload tail to a player's stream.
func (s *Server) GamelogAppend(c *gin.Context) {
	upload, ok := s.bindUpload(c)
	if !ok {
		return
	}

	newEvents, totalEvents, err := s.Dependencies.Clients.Append(upload.PlayerName, upload.Content)
	if err != nil {
		log.Error().Err(err).Str("player", upload.PlayerName).Msg("Failed to parse appended gamelog")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if newEvents > 0 {
		s.Dependencies.EventManager.Publish(event_manager.EventTypeGameSummary, gin.H{
			"player":    upload.PlayerName,
			"newEvents": newEvents,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"newEvents":   newEvents,
		"totalEvents": totalEvents,
	})
}
