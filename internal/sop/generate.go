package sop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/landmarktitle/tessa/internal/llm"
)

// Question is one step of the SOP creation interview.
type Question struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	Placeholder string `json:"placeholder"`
}

// InterviewQuestions drives the guided SOP wizard. Answers map onto the
// fields of InterviewAnswers by ID.
var InterviewQuestions = []Question{
	{
		ID:          "responsible_party",
		Question:    "Who is responsible for performing this task?",
		Placeholder: "e.g., Marketing Coordinator, Office Manager, All staff members...",
	},
	{
		ID:          "trigger_event",
		Question:    "What triggers this process? When does it start?",
		Placeholder: "e.g., When a new client request comes in, Every Monday morning, When inventory is low...",
	},
	{
		ID:          "steps",
		Question:    "Walk me through the steps from start to finish. Be as detailed as you'd like.",
		Placeholder: "Describe each step of the process...",
	},
	{
		ID:          "exceptions",
		Question:    "Are there any exceptions? When does this process NOT apply?",
		Placeholder: "e.g., This doesn't apply to rush orders, Skip step 3 if the client is existing...",
	},
	{
		ID:          "related_policies",
		Question:    "Are there any related procedures or policies I should know about?",
		Placeholder: "e.g., See also: Client Onboarding SOP, Related to: Privacy Policy...",
	},
}

// InterviewAnswers holds the wizard's answers.
type InterviewAnswers struct {
	ResponsibleParty string `json:"responsible_party"`
	TriggerEvent     string `json:"trigger_event"`
	Steps            string `json:"steps"`
	Exceptions       string `json:"exceptions"`
	RelatedPolicies  string `json:"related_policies"`
}

// Generated is the structured SOP draft produced by the model.
type Generated struct {
	Purpose          string `json:"purpose"`
	Scope            string `json:"scope"`
	ResponsibleParty string `json:"responsible_party"`
	TriggerEvent     string `json:"trigger_event"`
	Steps            string `json:"steps"`
	Exceptions       string `json:"exceptions"`
	RelatedPolicies  string `json:"related_policies"`
	ReviewDate       string `json:"review_date"`
}

const generatePrompt = `You are an expert at creating Standard Operating Procedures (SOPs) for businesses.

Based on the interview answers provided, create a formal, well-structured SOP.

Format the output as JSON with these fields:
- purpose: 2-3 sentences explaining why this procedure exists
- scope: Who does this apply to? When does it apply?
- responsible_party: Who performs this procedure
- trigger_event: What initiates this process
- steps: Numbered step-by-step instructions (be detailed and clear, use \n for line breaks)
- exceptions: When does this procedure NOT apply, or what variations exist
- related_policies: Any related procedures or policies (if mentioned)
- review_date: Suggest a review date in YYYY-MM-DD format (typically 1 year from now)

Guidelines:
- Use clear, actionable language
- Each step should be specific and unambiguous
- Include any warnings or important notes within relevant steps
- Be thorough but concise
- Format steps as a numbered list with line breaks

Return ONLY valid JSON, no explanation.`

// Generator turns interview answers into a formal SOP draft.
type Generator struct {
	provider llm.Provider
	model    string
}

// NewGenerator creates a Generator using the given provider and model.
func NewGenerator(provider llm.Provider, model string) *Generator {
	return &Generator{provider: provider, model: model}
}

// Generate asks the model for a formal SOP built from the interview
// answers. The response is parsed leniently: raw JSON first, then the
// outermost brace-delimited object.
func (g *Generator) Generate(ctx context.Context, title, department string, answers InterviewAnswers) (Generated, error) {
	orNone := func(s string) string {
		if s == "" {
			return "None specified"
		}
		return s
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Please create an SOP for the following:\n\n")
	fmt.Fprintf(&b, "Title: %s\nDepartment: %s\n\n", title, department)
	fmt.Fprintf(&b, "Interview Answers:\n")
	fmt.Fprintf(&b, "1. Who is responsible for performing this task?\n   %q\n\n", answers.ResponsibleParty)
	fmt.Fprintf(&b, "2. What triggers this process? When does it start?\n   %q\n\n", answers.TriggerEvent)
	fmt.Fprintf(&b, "3. Walk me through the steps from start to finish:\n   %q\n\n", answers.Steps)
	fmt.Fprintf(&b, "4. Are there any exceptions? When does this process NOT apply?\n   %q\n\n", orNone(answers.Exceptions))
	fmt.Fprintf(&b, "5. Are there any related procedures or policies?\n   %q\n\n", orNone(answers.RelatedPolicies))
	fmt.Fprintf(&b, "Please generate a formal SOP based on these answers.")

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: generatePrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		MaxTokens: 2048,
		JSONMode:  true,
	})
	if err != nil {
		return Generated{}, fmt.Errorf("generating SOP: %w", err)
	}

	var generated Generated
	if err := unmarshalObject(resp.Content, &generated); err != nil {
		return Generated{}, fmt.Errorf("parsing generated SOP: %w", err)
	}
	return generated, nil
}

// unmarshalObject parses s as JSON, falling back to the outermost
// brace-delimited slice when the model wrapped the object in prose.
func unmarshalObject(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}
