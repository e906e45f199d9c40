package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/accounts/:account_id/ledger")
	g.GET("", h.list)
	g.GET("/verify", h.verify)
}

func (h *Handler) list(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("account_id")

	balance, err := h.svc.GetBalance(ctx, accountID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	entries, err := h.svc.ListEntries(ctx, accountID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance": balance.Balance,
		"entries": entries,
	})
}

func (h *Handler) verify(c *gin.Context) {
	result, err := h.svc.VerifyChain(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
