package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/http/response"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
)

// SaleService — операции, которые нужны REST-обработчикам.
type SaleService interface {
	Create(ctx context.Context, cmd sales.CreateSaleCommand) (domain.Sale, error)
	Get(ctx context.Context, id string) (domain.Sale, error)
	List(ctx context.Context, filter domain.ListFilter) (domain.Page, error)
	Update(ctx context.Context, cmd sales.UpdateSaleCommand) (domain.Sale, error)
	Delete(ctx context.Context, id string) (sales.OperationResult, error)
	Cancel(ctx context.Context, cmd sales.CancelSaleCommand) (sales.OperationResult, error)
	CancelItem(ctx context.Context, cmd sales.CancelItemCommand) (sales.OperationResult, error)
	Timeline(ctx context.Context, saleID string) ([]domain.TimelineEvent, error)
}

// SaleHandler обслуживает ресурс /api/sales.
type SaleHandler struct {
	svc    SaleService
	logger *log.Entry
}

func NewSaleHandler(svc SaleService, logger *log.Entry) *SaleHandler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &SaleHandler{svc: svc, logger: logger.WithField("component", "sale-handler")}
}

// bindJSON разбирает тело запроса; ошибка формата отдаётся как ошибка валидации поля body.
func (h *SaleHandler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.WithError(err).WithField("path", c.FullPath()).Debug("malformed request body")
		verr := &domain.ValidationError{}
		verr.Add("body", "Request body is not valid JSON: "+err.Error())
		response.RespondError(c, verr)
		return false
	}
	return true
}

// CreateSale POST /api/sales
func (h *SaleHandler) CreateSale(c *gin.Context) {
	var req createSaleRequest
	if !h.bindJSON(c, &req) {
		return
	}

	sale, err := h.svc.Create(c.Request.Context(), req.toCommand())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.Header("Location", "/api/sales/"+sale.ID)
	response.RespondOK(c, http.StatusCreated, sales.MsgSaleCreated, toSaleResponse(sale))
}

// GetSale GET /api/sales/:id
func (h *SaleHandler) GetSale(c *gin.Context) {
	sale, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, sales.MsgSaleRetrieved, toSaleResponse(sale))
}

// ListSales GET /api/sales
func (h *SaleHandler) ListSales(c *gin.Context) {
	filter, err := parseListFilter(c.Request.URL.Query())
	if err != nil {
		response.RespondError(c, err)
		return
	}

	page, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, sales.MsgSalesListed, toSalePageResponse(page))
}

// UpdateSale PUT /api/sales/:id
func (h *SaleHandler) UpdateSale(c *gin.Context) {
	var req updateSaleRequest
	if !h.bindJSON(c, &req) {
		return
	}

	sale, err := h.svc.Update(c.Request.Context(), req.toCommand(c.Param("id")))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, sales.MsgSaleUpdated, toSaleResponse(sale))
}

// DeleteSale DELETE /api/sales/:id
func (h *SaleHandler) DeleteSale(c *gin.Context) {
	res, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	h.respondOperation(c, res, err)
}

// CancelSale POST /api/sales/:id/cancel
func (h *SaleHandler) CancelSale(c *gin.Context) {
	var req cancelSaleRequest
	if !h.bindJSON(c, &req) {
		return
	}

	res, err := h.svc.Cancel(c.Request.Context(), sales.CancelSaleCommand{
		ID:     c.Param("id"),
		Reason: req.CancellationReason,
	})
	h.respondOperation(c, res, err)
}

// CancelItem POST /api/sales/:id/items/:itemId/cancel
func (h *SaleHandler) CancelItem(c *gin.Context) {
	res, err := h.svc.CancelItem(c.Request.Context(), sales.CancelItemCommand{
		SaleID: c.Param("id"),
		ItemID: c.Param("itemId"),
	})
	h.respondOperation(c, res, err)
}

// Timeline GET /api/sales/:id/timeline
func (h *SaleHandler) Timeline(c *gin.Context) {
	events, err := h.svc.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, sales.MsgTimeline, toTimelineResponse(events))
}

func (h *SaleHandler) respondOperation(c *gin.Context, res sales.OperationResult, err error) {
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, res.Message, nil)
}
