package entity

// Template statuses as reported by the template binder
const (
	TemplateDraft    = "DRAFT"
	TemplateApproved = "APPROVED"
	TemplateArchived = "ARCHIVED"
)

// TemplateBinding is what the template binder knows about a template ID.
// File contents are never inspected by the lifecycle engine.
type TemplateBinding struct {
	TemplateID string `json:"template_id"`
	ObjectKey  string `json:"object_key"`
	DocType    string `json:"doc_type"`
	Status     string `json:"status"`
}
