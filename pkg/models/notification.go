package models

import "time"

// Category partitions the notification store. Each category is an
// independent append-only sequence.
type Category string

const (
	CategoryAssetRegistration  Category = "asset-registration"
	CategoryIssueReport        Category = "issue-report"
	CategoryMaintenanceRequest Category = "maintenance-request"
	CategoryApprovalResult     Category = "approval-result"
)

// Categories lists all known notification partitions.
func Categories() []Category {
	return []Category{
		CategoryAssetRegistration,
		CategoryIssueReport,
		CategoryMaintenanceRequest,
		CategoryApprovalResult,
	}
}

// KnownCategory reports whether c is one of the fixed partitions.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryAssetRegistration, CategoryIssueReport,
		CategoryMaintenanceRequest, CategoryApprovalResult:
		return true
	}
	return false
}

// ApprovalOutcome values used in approval-result payloads.
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

// NotificationRecord is one entry in a category partition. Payload holds
// category-specific structured data; the store treats it as opaque JSON.
type NotificationRecord struct {
	ID        string         `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Category  Category       `json:"category" example:"asset-registration"`
	Actor     string         `json:"actor" example:"user-17"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
