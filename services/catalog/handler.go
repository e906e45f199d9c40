package catalog

import (
	"net/http"

	"smallbiznis-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/award-settings")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:setting_id", h.get)
	g.PATCH("/:setting_id", h.update)
	g.DELETE("/:setting_id", h.delete)
	g.POST("/:setting_id/deactivate", h.deactivate)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed request body", err))
		return
	}

	setting, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, setting)
}

func (h *Handler) list(c *gin.Context) {
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		_ = c.Error(errutil.BadRequest("malformed query", err))
		return
	}

	settings, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *Handler) get(c *gin.Context) {
	setting, err := h.svc.Get(c.Request.Context(), c.Param("setting_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed request body", err))
		return
	}

	setting, err := h.svc.Update(c.Request.Context(), c.Param("setting_id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

func (h *Handler) deactivate(c *gin.Context) {
	setting, err := h.svc.Deactivate(c.Request.Context(), c.Param("setting_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("setting_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
