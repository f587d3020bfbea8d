// Package kb implements the Underwriting knowledge base: the
// topic/subtopic taxonomy and the reviewed knowledge entries extracted
// from source documents.
package kb

import "time"

// Topic is a top-level taxonomy node within a workspace.
type Topic struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Subtopic is a second-level taxonomy node under a topic.
type Subtopic struct {
	ID        string    `json:"id"`
	TopicID   string    `json:"topic_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is a reviewed knowledge entry. TopicName and SubtopicName are
// joined in for display.
type Entry struct {
	ID                string    `json:"id"`
	TopicID           string    `json:"topic_id"`
	SubtopicID        string    `json:"subtopic_id"`
	Scenario          string    `json:"scenario"`
	RequiredDocuments string    `json:"required_documents"`
	DecisionSteps     string    `json:"decision_steps"`
	RiskLevel         string    `json:"risk_level"`
	ExceptionLanguage string    `json:"exception_language"`
	SourceReference   string    `json:"source_reference"`
	Owner             string    `json:"owner"`
	LastReviewed      string    `json:"last_reviewed"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	TopicName    string `json:"topic_name,omitempty"`
	SubtopicName string `json:"subtopic_name,omitempty"`
}

// RiskLevels lists the accepted risk classifications.
var RiskLevels = []string{"Low", "Medium", "High"}

// ValidRiskLevel reports whether the value is an accepted risk level.
func ValidRiskLevel(level string) bool {
	for _, l := range RiskLevels {
		if l == level {
			return true
		}
	}
	return false
}
