package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/whatsapp-billing/internal/api/dto"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
)

// HarvestInvoices handles POST /api/v1/harvest/invoices
// Sweeps the portal's invoice listings into pending delivery jobs
func (h *RunHandler) HarvestInvoices(c *gin.Context) {
	created, err := h.harvester.HarvestInvoices(c.Request.Context())
	if err != nil {
		h.logger.Error("Invoice harvest failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Invoice harvest failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"created": created,
	})
}

// HarvestPayrolls handles POST /api/v1/harvest/payrolls
// Sweeps the portal's payroll listings into pending delivery jobs
func (h *RunHandler) HarvestPayrolls(c *gin.Context) {
	created, err := h.harvester.HarvestPayrolls(c.Request.Context())
	if err != nil {
		h.logger.Error("Payroll harvest failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Payroll harvest failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"created": created,
	})
}

// RunDelivery handles POST /api/v1/deliveries/run
// Drains the period's pending jobs through the provider
func (h *RunHandler) RunDelivery(c *gin.Context) {
	var req dto.RunDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "month and year must form a valid period",
		})
		return
	}

	result, err := h.delivery.RunBatch(c.Request.Context(), domain.Period{Month: req.Month, Year: req.Year})
	if err != nil {
		h.logger.Error("Delivery run failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Delivery run failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
	})
}
