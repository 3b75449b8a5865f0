package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/whatsapp-billing/internal/api/dto"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/storage"
)

// ListMessages handles GET /api/v1/messages
// Lists message log entries with optional filtering and pagination
func (h *MessageHandler) ListMessages(c *gin.Context) {
	var req dto.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	filter := storage.ListFilter{
		Status:   req.Status,
		Kind:     req.Kind,
		PageSize: req.PageSize,
		Offset:   req.Offset,
	}
	if req.Month != 0 || req.Year != 0 {
		if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "month and year must form a valid period",
			})
			return
		}
		filter.Period = &domain.Period{Month: req.Month, Year: req.Year}
	}

	jobs, err := h.messages.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list messages", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list messages",
		})
		return
	}

	messages := make([]dto.MessageDTO, len(jobs))
	for i := range jobs {
		messages[i] = toMessageDTO(&jobs[i])
	}

	c.JSON(http.StatusOK, dto.ListMessagesResponse{
		Messages: messages,
	})
}

// GetMessage handles GET /api/v1/messages/:message_id
// Retrieves one message log entry
func (h *MessageHandler) GetMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	if _, err := uuid.Parse(messageID); err != nil {
		h.logger.Error("Invalid message_id format", slog.String("message_id", messageID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "message_id must be a valid UUID",
		})
		return
	}

	job, err := h.messages.GetByID(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Message not found",
			})
			return
		}
		h.logger.Error("Failed to get message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get message",
		})
		return
	}

	c.JSON(http.StatusOK, toMessageDTO(job))
}

func toMessageDTO(job *domain.DeliveryJob) dto.MessageDTO {
	msg := dto.MessageDTO{
		ID:       job.ID,
		SourceID: job.SourceID,
		Kind:     job.Kind,
		Recipient: dto.ContactDTO{
			ExternalID:  job.Recipient.ExternalID,
			FullName:    job.Recipient.FullName,
			PhoneNumber: job.Recipient.PhoneNumber,
		},
		Month:              job.Period.Month,
		Year:               job.Period.Year,
		DocumentTotal:      job.Document.Total,
		FileURL:            job.FileURL,
		Status:             job.Status,
		FailureReason:      job.FailureReason,
		TemplateContentSid: job.TemplateContentSid,
		TemplateContent:    job.TemplateContent,
		ProviderMessageID:  job.ProviderMessageID,
		CreatedAt:          job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          job.UpdatedAt.Format(time.RFC3339),
	}

	if job.Document.Series != "" || job.Document.Number != 0 {
		msg.DocumentReference = job.Document.Series + job.Document.Separator + strconv.Itoa(job.Document.Number)
	}

	if job.Employee != nil {
		msg.Employee = &dto.ContactDTO{
			ExternalID:  job.Employee.ExternalID,
			FullName:    job.Employee.FullName,
			PhoneNumber: job.Employee.PhoneNumber,
		}
	}

	if job.SentAt != nil {
		msg.SentAt = job.SentAt.Format(time.RFC3339)
	}

	return msg
}
