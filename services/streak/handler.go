package streak

import (
	"errors"
	"io"
	"net/http"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/validation"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/accounts/:account_id")
	g.POST("/logins", h.recordLogin)
	g.GET("/streak", h.getStreak)
}

func (h *Handler) recordLogin(c *gin.Context) {
	var req RecordLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(errutil.BadRequest("malformed request body", err))
		return
	}
	if err := validation.Struct(req); err != nil {
		_ = c.Error(err)
		return
	}

	eventDate := h.svc.Today()
	if req.EventDate != "" {
		d, err := time.Parse(time.DateOnly, req.EventDate)
		if err != nil {
			_ = c.Error(errutil.BadRequest("invalid event_date", err))
			return
		}
		eventDate = d
	}

	result, err := h.svc.RecordLogin(c.Request.Context(), c.Param("account_id"), eventDate)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"streak":     toResponse(result.Streak),
		"advanced":   result.Advanced,
		"new_awards": result.NewAwards,
	})
}

func (h *Handler) getStreak(c *gin.Context) {
	streak, err := h.svc.GetStreak(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toResponse(streak))
}

type streakResponse struct {
	AccountID      string `json:"account_id"`
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
	TotalLoginDays int    `json:"total_login_days"`
	LastLoginDate  string `json:"last_login_date"`
}

func toResponse(s *LoginStreak) streakResponse {
	return streakResponse{
		AccountID:      s.AccountID,
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		TotalLoginDays: s.TotalLoginDays,
		LastLoginDate:  s.LastLoginDate.UTC().Format(time.DateOnly),
	}
}
