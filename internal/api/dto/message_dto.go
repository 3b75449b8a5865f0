// Package dto defines the HTTP request and response shapes.
package dto

// ContactDTO is a delivery recipient in API responses.
type ContactDTO struct {
	ExternalID  string `json:"external_id,omitempty"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

// MessageDTO is one message log entry in API responses. Encrypted
// columns come back decrypted; the API is the operator's view.
type MessageDTO struct {
	ID                 string      `json:"message_id"`
	SourceID           string      `json:"source_id"`
	Kind               string      `json:"kind"`
	Recipient          ContactDTO  `json:"recipient"`
	Employee           *ContactDTO `json:"employee,omitempty"`
	Month              int         `json:"month"`
	Year               int         `json:"year"`
	DocumentReference  string      `json:"document_reference,omitempty"`
	DocumentTotal      float64     `json:"document_total,omitempty"`
	FileURL            string      `json:"file_url,omitempty"`
	Status             string      `json:"status"`
	FailureReason      string      `json:"failure_reason,omitempty"`
	TemplateContentSid string      `json:"template_content_sid,omitempty"`
	TemplateContent    string      `json:"template_content,omitempty"`
	ProviderMessageID  string      `json:"provider_message_id,omitempty"`
	SentAt             string      `json:"sent_at,omitempty"`
	CreatedAt          string      `json:"created_at"`
	UpdatedAt          string      `json:"updated_at"`
}

// ListMessagesRequest filters GET /messages.
type ListMessagesRequest struct {
	Month    int    `form:"month"`
	Year     int    `form:"year"`
	Status   string `form:"status"`
	Kind     string `form:"kind"`
	PageSize int    `form:"page_size"`
	Offset   int    `form:"offset"`
}

// ListMessagesResponse is the GET /messages payload.
type ListMessagesResponse struct {
	Messages []MessageDTO `json:"messages"`
}

// InitializeContextRequest opens a conversation window on demand,
// forwarding the inbound message that prompted it.
type InitializeContextRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	SenderName  string `json:"sender_name"`
	SenderPhone string `json:"sender_phone"`
	MessageBody string `json:"message_body"`
}

// RunDeliveryRequest selects the period for a manual delivery run.
type RunDeliveryRequest struct {
	Month int `json:"month" binding:"required"`
	Year  int `json:"year" binding:"required"`
}
