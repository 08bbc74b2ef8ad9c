package server

import (
	"fmt"
	"gigchat/domain"
	"gigchat/errors"
	"gigchat/services"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.chatService.CreateConversation(c.Request.Context(), domain.CreateConversationCommand{
		IsGroup:            req.IsGroup,
		Title:              req.Title,
		ParticipantUserIDs: req.ParticipantUserIDs,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, idResponse{ID: id})
}

func (s *Server) getConversation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	conversation, err := s.chatService.GetConversation(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conversation))
}

func (s *Server) deleteConversation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	if err = s.chatService.DeleteConversation(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listParticipants(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	participants, err := s.chatService.ListParticipants(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toParticipantResponses(participants))
}

func (s *Server) addParticipant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	var req addParticipantRequest
	if err = bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	participant, err := s.chatService.AddParticipant(c.Request.Context(), id, req.UserID, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toParticipantResponse(participant))
}

func (s *Server) updateParticipantRole(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	userID, err := pathID(c, "userId")
	if err != nil {
		s.fail(c, err)
		return
	}
	var req updateRoleRequest
	if err = bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	participant, err := s.chatService.UpdateParticipantRole(c.Request.Context(), id, userID, req.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toParticipantResponse(participant))
}

func (s *Server) removeParticipant(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	userID, err := pathID(c, "userId")
	if err != nil {
		s.fail(c, err)
		return
	}
	if err = s.chatService.RemoveParticipant(c.Request.Context(), id, userID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sendMessage(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	var req sendMessageRequest
	if err = bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	message, err := s.chatService.SendMessage(c.Request.Context(), domain.SendMessageCommand{
		ConversationID: id,
		SenderUserID:   req.SenderUserID,
		Body:           req.Body,
		AttachmentURL:  req.AttachmentURL,
		AttachmentMime: req.AttachmentMime,
		Kind:           req.Kind,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, idResponse{ID: message.ID})
}

// getMessages returns the newest messages as a plain list. With a cursor
// parameter, even an empty one, it returns a page instead. Without a limit
// the list holds DefaultPageSize messages; a limit of zero or less returns
// every message of the recent window.
func (s *Server) getMessages(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	limit := services.DefaultPageSize
	if raw, ok := c.GetQuery("limit"); ok {
		if limit, err = strconv.Atoi(raw); err != nil {
			s.fail(c, fmt.Errorf("%w: limit must be an integer", errors.ErrInvalidInput))
			return
		}
	}

	cursor, paged := c.GetQuery("cursor")
	if !paged {
		messages, err := s.chatService.GetRecentMessages(c.Request.Context(), id, limit)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, toMessageResponses(messages))
		return
	}

	var from *string
	if cursor != "" {
		from = &cursor
	}
	page, err := s.chatService.GetMessages(c.Request.Context(), id, from, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse{Messages: toMessageResponses(page.Messages), NextCursor: page.NextCursor})
}

func (s *Server) markRead(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	var req markReadRequest
	if err = bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	participant, err := s.chatService.MarkRead(c.Request.Context(), id, req.UserID, req.MessageID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toParticipantResponse(participant))
}
