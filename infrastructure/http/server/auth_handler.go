package server

import (
	stderrors "errors"
	"gigchat/errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// forgotPassword answers the same way whether or not the email is known,
// rate limited or failed to be mailed. Only a malformed email is reported.
func (s *Server) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	err := s.resetService.RequestReset(c.Request.Context(), req.Email)
	if stderrors.Is(err, errors.ErrInvalidInput) {
		s.fail(c, err)
		return
	}
	if err != nil {
		s.log.Error("Password reset request failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	userID, err := s.resetService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "userId": userID})
}
