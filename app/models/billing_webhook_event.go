package models

import "time"

// BillingWebhookEvent stores provider webhook payloads with deduplication
// metadata for idempotent processing.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id" firestore:"-"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider" firestore:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id" firestore:"providerEventId"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type" firestore:"eventType"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json" firestore:"payloadJson"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid" firestore:"signatureValid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty" firestore:"processedAt"`
	ProcessingError string     `gorm:"type:text" json:"processing_error" firestore:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at" firestore:"updatedAt"`
}

// IsHandled reports whether an earlier delivery of this event was processed without error.
func (e *BillingWebhookEvent) IsHandled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
