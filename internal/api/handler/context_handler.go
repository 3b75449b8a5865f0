package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/whatsapp-billing/internal/api/dto"
	"github.com/cuongbtq/whatsapp-billing/internal/contextwindow"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
)

// CheckWindow handles GET /api/v1/context/:phone_number
// Reports whether the phone number has an open conversation window
func (h *ContextHandler) CheckWindow(c *gin.Context) {
	phone := contextwindow.NormalizePhone(c.Param("phone_number"))
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "phone_number is required",
		})
		return
	}

	active, err := h.windows.IsActive(c.Request.Context(), phone)
	if err != nil {
		h.logger.Error("Failed to check context window", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check context window",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phone_number": phone,
		"active":       active,
	})
}

// InitializeWindow handles POST /api/v1/context/initialize
// Opens a conversation window by forwarding the inbound message inside
// the greeting template
func (h *ContextHandler) InitializeWindow(c *gin.Context) {
	var req dto.InitializeContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.windows.Initialize(c.Request.Context(), req.PhoneNumber, contextwindow.InboundMessage{
		SenderName:  req.SenderName,
		SenderPhone: req.SenderPhone,
		Body:        req.MessageBody,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoTemplate) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "No initialization template configured",
			})
			return
		}
		h.logger.Error("Failed to initialize context window", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to initialize context window",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phone_number":   contextwindow.NormalizePhone(req.PhoneNumber),
		"already_active": result.AlreadyActive,
		"message_id":     result.MessageID,
	})
}

// SweepWindows handles POST /api/v1/context/sweep
// Deletes every expired conversation window
func (h *ContextHandler) SweepWindows(c *gin.Context) {
	deleted, err := h.windows.SweepExpired(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to sweep context windows", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to sweep context windows",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": deleted,
	})
}
