// Session HTTP handlers.
//
// This file exposes the game-session lifecycle:
//   - POST /sessions                  (start or resume, spends one chip on start)
//   - GET  /sessions/{id}             (inspect)
//   - POST /sessions/{id}/lose-life   (decrement lives, last life ends the session)
//   - POST /sessions/{id}/pause       (Active -> Paused)
//   - POST /sessions/{id}/resume      (Paused -> Active)
//   - POST /sessions/{id}/end         (record final score, close)
//
// Transitions are serialized per (account, game) by the session service; a
// transition attempted from the wrong state maps to 409 invalid_state.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//
// DTOs
//

// StartSessionRequest is the JSON payload for opening a session.
type StartSessionRequest struct {
	// GameType identifies the game; one open session per (account, game_type).
	GameType string `json:"game_type" binding:"required,min=1" example:"snake"`
	// RequestRef deduplicates the chip spend; falls back to the Idempotency-Key header.
	RequestRef string `json:"request_ref" example:"session-start:snake:1"`
}

// StartSessionResponse is the JSON envelope for a started (or resumed) session.
type StartSessionResponse struct {
	SessionID      string `json:"session_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	SessionToken   string `json:"session_token" example:"b2f7c1de-90aa-4a1e-8a2e-5a0a9b3cf001"`
	LivesRemaining int    `json:"lives_remaining" example:"3"`
	// Resumed is true when an already-open session was returned; no chip was spent.
	Resumed bool `json:"resumed"`
}

// LoseLifeResponse reports the session state after a life is lost.
type LoseLifeResponse struct {
	LivesRemaining int  `json:"lives_remaining" example:"2"`
	Ended          bool `json:"ended"`
}

// EndSessionRequest is the JSON payload for closing a session.
type EndSessionRequest struct {
	// FinalScore is recorded on the session row.
	FinalScore int64 `json:"final_score" example:"1250"`
}

//
// Handlers
//

// StartSession godoc
// @ID          startSession
// @Summary     Start or resume a game session
// @Description Opens a session for (account, game_type), spending one chip through the
// @Description operation executor. When an open session already exists it is returned
// @Description with resumed=true and no chip is spent.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       X-Account-ID     header  string  false "Account ID (demo header)"  example(player-42)
// @Param       Idempotency-Key  header  string  false "Fallback request_ref for safe retries"
// @Param       body             body    handlers.StartSessionRequest  true  "Start payload"
//
// @Success     201  {object}  handlers.StartSessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Insufficient funds or account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.GameType) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "game_type required")
		return
	}

	ref := resolveRequestRef(c, req.RequestRef)
	if ref == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request_ref required (body or Idempotency-Key header)")
		return
	}

	sess, resumed, err := h.sessSvc.StartSession(c.Request.Context(), accountID(c), req.GameType, ref)
	if err != nil {
		failForServiceErr(c, err)
		return
	}

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	ok(c, status, StartSessionResponse{
		SessionID:      sess.ID,
		SessionToken:   sess.SessionToken,
		LivesRemaining: sess.LivesRemaining,
		Resumed:        resumed,
	})
}

// GetSession godoc
// @ID          getSession
// @Summary     Inspect a session
// @Description Returns the session row, including lives, pause flag, score, and timestamps.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.GameSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	sess, err := h.sessSvc.GetSession(c.Request.Context(), id)
	if err != nil {
		failForServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// LoseLife godoc
// @ID          loseLife
// @Summary     Lose a life
// @Description Decrements the session's remaining lives. Valid only while Active; when
// @Description the last life goes, the session transitions to Ended in the same write.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.LoseLifeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid state or account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/lose-life [post]
func (h *Handlers) LoseLife(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	lives, ended, err := h.sessSvc.LoseLife(c.Request.Context(), id)
	if err != nil {
		failForServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, LoseLifeResponse{LivesRemaining: lives, Ended: ended})
}

// PauseSession godoc
// @ID          pauseSession
// @Summary     Pause a session
// @Description Transitions the session Active -> Paused. No balance effect.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid state"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/pause [post]
func (h *Handlers) PauseSession(c *gin.Context) {
	h.setPaused(c, true)
}

// ResumeSession godoc
// @ID          resumeSession
// @Summary     Resume a session
// @Description Transitions the session Paused -> Active. No balance effect.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid state"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/resume [post]
func (h *Handlers) ResumeSession(c *gin.Context) {
	h.setPaused(c, false)
}

// EndSession godoc
// @ID          endSession
// @Summary     End a session
// @Description Records the final score and closes the session. Valid from Active or Paused.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Session ID (UUID)"  format(uuid)
// @Param       body  body  handlers.EndSessionRequest  true  "Final score payload"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid state"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/end [post]
func (h *Handlers) EndSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req EndSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if err := h.sessSvc.EndSession(c.Request.Context(), id, req.FinalScore); err != nil {
		failForServiceErr(c, err)
		return
	}
	noContent(c)
}

// setPaused is the shared body of the pause/resume endpoints.
func (h *Handlers) setPaused(c *gin.Context, paused bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var err error
	if paused {
		err = h.sessSvc.Pause(c.Request.Context(), id)
	} else {
		err = h.sessSvc.Resume(c.Request.Context(), id)
	}
	if err != nil {
		failForServiceErr(c, err)
		return
	}
	noContent(c)
}
