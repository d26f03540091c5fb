package dto

import (
	"github.com/cuongbtq/offer-importer/internal/detector"
	"github.com/cuongbtq/offer-importer/internal/domain"
)

type ConnectionRequest struct {
	Name       string `json:"name" binding:"required"`
	UserID     *int64 `json:"user_id"`
	ClientID   *int64 `json:"client_id"`
	URL        string `json:"url"`
	Method     string `json:"method"`
	Headers    string `json:"headers"`
	Body       string `json:"body"`
	SourceType string `json:"source_type"`
	Endpoint   string `json:"endpoint"`
	Frequency  string `json:"frequency" binding:"omitempty,oneof=manual hourly daily weekly"`
}

func (r *ConnectionRequest) ToDomain(id int64) *domain.Connection {
	return &domain.Connection{
		ID:         id,
		Name:       r.Name,
		UserID:     r.UserID,
		ClientID:   r.ClientID,
		URL:        r.URL,
		Method:     r.Method,
		Headers:    r.Headers,
		Body:       r.Body,
		SourceType: r.SourceType,
		Endpoint:   r.Endpoint,
		Frequency:  r.Frequency,
	}
}

type ListConnectionsResponse struct {
	Connections []domain.Connection `json:"connections"`
}

type MappingDTO struct {
	ClientID           *int64  `json:"client_id"`
	SourceField        string  `json:"source_field" binding:"required"`
	TargetField        string  `json:"target_field" binding:"required"`
	TransformationType string  `json:"transformation_type"`
	TransformationRule *string `json:"transformation_rule,omitempty"`
}

// ReplaceMappingsRequest requires the mappings key; an empty list clears the set.
type ReplaceMappingsRequest struct {
	Mappings []MappingDTO `json:"mappings" binding:"required,dive"`
}

func (r *ReplaceMappingsRequest) ToDomain(connectionID int64) []domain.FieldMapping {
	out := make([]domain.FieldMapping, 0, len(r.Mappings))
	for _, m := range r.Mappings {
		out = append(out, domain.FieldMapping{
			ConnectionID:       connectionID,
			ClientID:           m.ClientID,
			SourceField:        m.SourceField,
			TargetField:        m.TargetField,
			TransformationType: domain.TransformationType(m.TransformationType),
			TransformationRule: m.TransformationRule,
		})
	}
	return out
}

type MappingsResponse struct {
	ConnectionID int64                 `json:"connection_id"`
	Mappings     []domain.FieldMapping `json:"mappings"`
}

type FieldDTO struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Sample      string `json:"sample"`
	Description string `json:"description"`
}

type DetectFieldsResponse struct {
	Success bool       `json:"success"`
	Fields  []FieldDTO `json:"fields"`
}

func NewDetectFieldsResponse(fields []detector.Field) DetectFieldsResponse {
	out := make([]FieldDTO, len(fields))
	for i, f := range fields {
		out[i] = FieldDTO{
			Name:        f.Name,
			Type:        string(f.Type),
			Sample:      f.Sample,
			Description: f.Description,
		}
	}
	return DetectFieldsResponse{Success: true, Fields: out}
}

type CreateImportRequest struct {
	BatchSize int `json:"batch_size"`
}

type ReprocessRequest struct {
	BatchSize int          `json:"batch_size"`
	Mappings  []MappingDTO `json:"mappings" binding:"omitempty,dive"`
}

type ImportRunDTO struct {
	RunID        string               `json:"run_id"`
	ConnectionID int64                `json:"connection_id"`
	BatchSize    int                  `json:"batch_size"`
	Status       string               `json:"status"`
	WorkerID     *string              `json:"worker_id,omitempty"`
	Imported     int                  `json:"imported"`
	Errors       int                  `json:"errors"`
	FailedOffers []domain.FailedOffer `json:"failed_offers"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	RetryCount   int                  `json:"retry_count"`
	MaxRetries   int                  `json:"max_retries"`
	CreatedAt    string               `json:"created_at"`
	StartedAt    *string              `json:"started_at,omitempty"`
	CompletedAt  *string              `json:"completed_at,omitempty"`
	UpdatedAt    string               `json:"updated_at"`
}

type ListOffersRequest struct {
	ConnectionID *int64 `form:"connection_id"`
	StatusID     *int   `form:"status_id"`
	PageSize     int    `form:"page_size"`
	Cursor       string `form:"cursor"`
}

type ListOffersResponse struct {
	Offers     []domain.JobOffer `json:"offers"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type StatusSweepRequest struct {
	ConnectionID *int64 `form:"connection_id"`
}
