// Package provider abstracts the generation provider used by the pipeline
// and the chat assistant.
package provider

import (
	"context"

	"github.com/blogify-ai/blogify/models"
)

// Message is one turn of a provider conversation.
type Message struct {
	Role    string `json:"role"` // user or model
	Content string `json:"content"`
}

// ContentRequest carries everything the provider needs to write a post.
type ContentRequest struct {
	Keyword         string
	TemplateKey     string   // template key, e.g. "template2"
	TemplateName    string   // human name shown in the prompt
	RequiredFields  []string // schema fields the JSON must carry
	RelatedKeywords []string // SEO terms to weave in
	ContextExcerpts []string // optional article excerpts for grounding
}

// Provider is the generation-provider contract.
type Provider interface {
	// SelectTopic picks the best topic from a numbered keyword list and
	// returns its zero-based index plus the stated reason.
	SelectTopic(ctx context.Context, keywords []string) (int, string, error)

	// SelectTemplate picks a template id given the catalog descriptions.
	SelectTemplate(ctx context.Context, keyword, catalogContext string) (string, error)

	// GenerateContent produces structured content for the request. The
	// returned history lets RepairContent continue the conversation.
	GenerateContent(ctx context.Context, req ContentRequest) (models.Content, []Message, error)

	// RepairContent re-asks for content after validation found missing
	// fields, continuing from the prior exchange.
	RepairContent(ctx context.Context, history []Message, keyword string, missing []string) (models.Content, error)

	// Chat answers a free-form assistant message given prior history.
	Chat(ctx context.Context, history []Message, message string) (string, error)
}
