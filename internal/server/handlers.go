package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"massdm/internal/dispatch"
	"massdm/internal/fetcher"
	"massdm/internal/insta"
	"massdm/internal/session"
)

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Server) handleLogin(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	if username == "" || password == "" {
		respondError(c, http.StatusBadRequest, "username and password are required")
		return
	}
	// Auth outcomes (bad password, challenge, 2FA pending) are reported in
	// the body with a 200, matching the client contract.
	c.JSON(http.StatusOK, s.auth.Login(c.Request.Context(), username, password))
}

func (s *Server) handleCompleteTwoFactor(c *gin.Context) {
	code := strings.TrimSpace(c.PostForm("code"))
	if code == "" {
		respondError(c, http.StatusBadRequest, "verification code is required")
		return
	}
	c.JSON(http.StatusOK, s.auth.CompleteTwoFactor(c.Request.Context(), code))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logged_in": s.auth.IsLoggedIn()})
}

func (s *Server) handleGetList(c *gin.Context) {
	if !s.auth.IsLoggedIn() {
		respondError(c, http.StatusUnauthorized, "Not logged in.")
		return
	}

	handle := strings.TrimSpace(c.PostForm("target_username"))
	if handle == "" {
		respondError(c, http.StatusBadRequest, "target_username is required")
		return
	}
	kind, err := insta.ParseListKind(c.PostForm("list_type"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := s.lister.Resolve(c.Request.Context(), handle)
	switch {
	case err == nil:
	case errors.Is(err, insta.ErrNotFound):
		respondError(c, http.StatusNotFound, fmt.Sprintf("User '%s' not found.", handle))
		return
	case errors.Is(err, session.ErrNotLoggedIn):
		respondError(c, http.StatusUnauthorized, "Not logged in.")
		return
	default:
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	result := s.lister.Fetch(c.Request.Context(), userID, kind)
	if result.Status == fetcher.StatusError {
		respondError(c, http.StatusInternalServerError, result.Message)
		return
	}
	// Warning (rate limited) is a successful response: the caller should
	// treat it as "try later", not as a failure.
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSendDM(c *gin.Context) {
	if !s.auth.IsLoggedIn() {
		respondError(c, http.StatusUnauthorized, "Not logged in.")
		return
	}

	recipients, err := dispatch.ParseRecipients(c.PostForm("recipient_pks"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	minDelay, err := formInt(c, "min_delay")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	maxDelay, err := formInt(c, "max_delay")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	maxRecipients, err := formInt(c, "max_recipients")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	req := dispatch.Request{
		Recipients:    recipients,
		Message:       c.PostForm("message"),
		MinDelay:      minDelay,
		MaxDelay:      maxDelay,
		MaxRecipients: maxRecipients,
	}

	// The run is detached from this request on purpose: total run time is
	// minutes, and the only progress channel is the log stream.
	err = s.disp.Trigger(s.runCtx, req)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "processing",
			"message": "Mass DM task started in the background. Check logs for progress.",
		})
	case dispatch.IsValidation(err):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"status": "busy", "error": err.Error()})
	default:
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}

func formInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.PostForm(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return v, nil
}
