package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/runner"
)

// turnRequest is the body of POST /v1/conversations/:id/messages.
type turnRequest struct {
	Message            string `json:"message" binding:"required"`
	PreviousResponseID string `json:"previous_response_id"`
}

// turnHandler runs one generation turn and streams client events back as
// RS-delimited JSON frames (one long-lived body, many discrete frames).
// The handler is the queue's single consumer; the runner goroutine is the
// single producer. If the client stops reading, writes fail, the handler
// stops draining, and the queue's backpressure plus request-context
// cancellation wind the producer down.
func (s *Server) turnHandler(c *gin.Context) {
	conversationID := c.Param("id")
	if conversationID == "new" {
		conversationID = uuid.NewString()
	}

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.turnTimeout)
	defer cancel()

	queue := events.NewQueue(s.queueCapacity)
	resultCh := make(chan *runner.TurnResult, 1)

	go func() {
		result, err := s.runner.RunTurn(ctx, queue, runner.TurnInput{
			ConversationID:     conversationID,
			Message:            req.Message,
			PreviousResponseID: req.PreviousResponseID,
		})
		if err != nil {
			slog.Warn("Turn failed at setup",
				"conversation_id", conversationID, "error", err)
		}
		resultCh <- result
	}()

	c.Header("Content-Type", "application/json-seq")
	c.Header("X-Conversation-ID", conversationID)
	c.Status(http.StatusOK)

	for ev := range queue.Events() {
		if err := events.WriteFrame(c.Writer, ev); err != nil {
			// Client went away; stop draining. The producer is bounded by
			// the queue cap and the request context.
			slog.Info("Client disconnected mid-stream",
				"conversation_id", conversationID, "error", err)
			cancel()
			break
		}
		c.Writer.Flush()
	}

	result := <-resultCh
	if result != nil && result.PersistErr != nil {
		// The record exists in memory; surface the gap to the client so
		// it can warn that history may be incomplete.
		_ = events.WriteFrame(c.Writer, events.ClientEvent{
			Kind: events.KindError,
			Error: &events.ErrorInfo{
				Kind:       "persistence_error",
				Message:    "The response finished but could not be saved to history.",
				Suggestion: "The conversation log may be missing this turn.",
			},
		})
		c.Writer.Flush()
	}
}

// listMessagesHandler returns a conversation's ordered message log.
func (s *Server) listMessagesHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence is disabled"})
		return
	}
	entries, err := s.store.Entries(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read conversation log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}
