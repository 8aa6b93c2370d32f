package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
	"github.com/taoyao-code/ptsp01-gateway/internal/storage/models"
)

// StripSource 排插查找（hub.Manager 满足）
type StripSource interface {
	Get(id string) (*hub.Hub, bool)
	List() []*hub.Hub
}

// HistoryStore 历史样本查询（gormrepo.Repository 满足）
type HistoryStore interface {
	History(ctx context.Context, stripID string, socket int32, since time.Time, limit int) ([]models.OutletSample, error)
}

// StripSummary 列表项
type StripSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	Online     bool   `json:"online"`
	LoginState string `json:"login_state"`
	Phase      string `json:"phase"`
	Version    string `json:"version"`
	Polling    bool   `json:"polling"`
}

// SwitchRequest 开关请求体
type SwitchRequest struct {
	On *bool `json:"on" binding:"required"`
}

// SwitchResponse 已下发，状态由后续查询确认
type SwitchResponse struct {
	Strip  string `json:"strip"`
	Socket int    `json:"socket"`
	On     bool   `json:"on"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StripHandler 排插 API 处理器
type StripHandler struct {
	strips  StripSource
	history HistoryStore
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewStripHandler 创建处理器，history 与 m 可为 nil
func NewStripHandler(strips StripSource, history HistoryStore, m *metrics.AppMetrics, logger *zap.Logger) *StripHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripHandler{strips: strips, history: history, metrics: m, logger: logger}
}

func fail(c *gin.Context, code int, kind string, err error) {
	resp := ErrorResponse{Error: kind}
	if err != nil {
		resp.Message = err.Error()
	}
	c.AbortWithStatusJSON(code, resp)
}

func (h *StripHandler) strip(c *gin.Context) (*hub.Hub, bool) {
	s, ok := h.strips.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "strip_not_found", nil)
		return nil, false
	}
	return s, true
}

func (h *StripHandler) outlet(c *gin.Context) (*hub.Outlet, bool) {
	s, ok := h.strip(c)
	if !ok {
		return nil, false
	}
	socket, err := strconv.Atoi(c.Param("socket"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_socket", err)
		return nil, false
	}
	o, ok := s.Outlet(socket)
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_socket", ptsp01.ErrInvalidSocket)
		return nil, false
	}
	return o, true
}

// ListStrips 排插列表
// @Summary 排插列表
// @Tags 排插
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} StripSummary
// @Router /api/strips [get]
func (h *StripHandler) ListStrips(c *gin.Context) {
	list := h.strips.List()
	out := make([]StripSummary, 0, len(list))
	for _, s := range list {
		out = append(out, StripSummary{
			ID:         s.ID(),
			Name:       s.Name(),
			Host:       s.Host(),
			Online:     s.Online(),
			LoginState: s.LoginState().String(),
			Phase:      s.Session().Phase().String(),
			Version:    s.Version(),
			Polling:    s.Session().IsPolling(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetStrip 排插详情
// @Summary 排插详情（含三个插座）
// @Tags 排插
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "排插ID"
// @Success 200 {object} hub.Status
// @Failure 404 {object} ErrorResponse
// @Router /api/strips/{id} [get]
func (h *StripHandler) GetStrip(c *gin.Context) {
	s, ok := h.strip(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// GetOutlet 插座状态
// @Summary 插座状态
// @Tags 排插
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "排插ID"
// @Param socket path int true "插座编号 1-3"
// @Success 200 {object} hub.OutletStatus
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/strips/{id}/outlets/{socket} [get]
func (h *StripHandler) GetOutlet(c *gin.Context) {
	o, ok := h.outlet(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, o.Status())
}

// SwitchOutlet 开关插座
// @Summary 开关插座
// @Description 命令写入后立即返回 202，实际状态由随后的查询结果确认
// @Tags 排插
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "排插ID"
// @Param socket path int true "插座编号 1-3"
// @Param body body SwitchRequest true "目标状态"
// @Success 202 {object} SwitchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "排插未登录"
// @Failure 429 {object} ErrorResponse
// @Router /api/strips/{id}/outlets/{socket}/switch [post]
func (h *StripHandler) SwitchOutlet(c *gin.Context) {
	o, ok := h.outlet(c)
	if !ok {
		return
	}
	var req SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	err := o.Set(c.Request.Context(), *req.On)
	h.metrics.Command("switch", err)
	switch {
	case err == nil:
	case errors.Is(err, ptsp01.ErrNotLoggedIn):
		fail(c, http.StatusConflict, "not_logged_in", err)
		return
	case errors.Is(err, ptsp01.ErrInvalidSocket):
		fail(c, http.StatusBadRequest, "invalid_socket", err)
		return
	case errors.Is(err, hub.ErrThrottled):
		fail(c, http.StatusTooManyRequests, "throttled", err)
		return
	default:
		h.logger.Warn("switch failed", zap.String("outlet", o.ID()), zap.Error(err))
		fail(c, http.StatusBadGateway, "switch_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, SwitchResponse{Strip: o.Hub().ID(), Socket: o.Socket(), On: *req.On})
}

// RefreshStrip 立即刷新
// @Summary 立即查询全部插座
// @Tags 排插
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "排插ID"
// @Success 202 {object} map[string]string
// @Failure 409 {object} ErrorResponse "排插未登录"
// @Router /api/strips/{id}/refresh [post]
func (h *StripHandler) RefreshStrip(c *gin.Context) {
	s, ok := h.strip(c)
	if !ok {
		return
	}
	err := s.Refresh()
	h.metrics.Command("refresh", err)
	if err != nil {
		if errors.Is(err, ptsp01.ErrNotLoggedIn) {
			fail(c, http.StatusConflict, "not_logged_in", err)
			return
		}
		fail(c, http.StatusBadGateway, "refresh_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"strip": s.ID(), "status": "refreshing"})
}

// OutletHistory 插座历史样本
// @Summary 插座历史样本
// @Tags 排插
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "排插ID"
// @Param socket path int true "插座编号 1-3"
// @Param since query string false "起始时间 RFC3339"
// @Param limit query int false "最大条数(默认100)"
// @Success 200 {array} models.OutletSample
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse "未启用数据库"
// @Router /api/strips/{id}/outlets/{socket}/history [get]
func (h *StripHandler) OutletHistory(c *gin.Context) {
	if h.history == nil {
		fail(c, http.StatusServiceUnavailable, "history_disabled", nil)
		return
	}
	o, ok := h.outlet(c)
	if !ok {
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil && vv > 0 {
			limit = vv
		}
	}
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid_since", err)
			return
		}
		since = t
	}

	samples, err := h.history.History(c.Request.Context(), o.Hub().ID(), int32(o.Socket()), since, limit)
	if err != nil {
		h.logger.Error("query history failed", zap.String("outlet", o.ID()), zap.Error(err))
		fail(c, http.StatusInternalServerError, "history_failed", err)
		return
	}
	c.JSON(http.StatusOK, samples)
}
