// Package gemini implements the provider contract against Google's
// Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/telemetry"
	"github.com/blogify-ai/blogify/models"
	"github.com/blogify-ai/blogify/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Client struct {
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	httpClient      *http.Client

	// BaseURL is overridable for tests.
	BaseURL string
}

// New builds a Gemini client from config.
func New(cfg config.GeminiConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      &http.Client{Timeout: timeout},
		BaseURL:         defaultBaseURL,
	}
}

// Wire types for the generateContent endpoint.
type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type request struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type response struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// sendRequest calls generateContent with an optional system prompt and the
// conversation turns, returning the first candidate's text. Every call is
// counted and timed under the given operation label.
func (c *Client) sendRequest(ctx context.Context, op, system string, messages []provider.Message) (string, error) {
	start := time.Now()
	text, err := c.doRequest(ctx, system, messages)
	telemetry.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.ProviderRequestsTotal.WithLabelValues(op, status).Inc()
	return text, err
}

func (c *Client) doRequest(ctx context.Context, system string, messages []provider.Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	reqBody := request{
		GenerationConfig: generationConfig{Temperature: c.temperature, MaxOutputTokens: c.maxOutputTokens},
	}
	if system != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	for _, m := range messages {
		role := m.Role
		if role != "model" {
			role = "user"
		}
		reqBody.Contents = append(reqBody.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.BaseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var geminiResp response
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if geminiResp.Error != nil {
		return "", fmt.Errorf("gemini API error %d: %s", geminiResp.Error.Code, geminiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, p := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// SelectTopic asks the model to pick the best trending topic from the list.
func (c *Client) SelectTopic(ctx context.Context, keywords []string) (int, string, error) {
	var list strings.Builder
	for i, k := range keywords {
		fmt.Fprintf(&list, "%d. %s\n", i+1, k)
	}

	system := "You are a helpful AI assistant for a blog platform that specializes in selecting trending topics for blog posts."
	prompt := fmt.Sprintf(`As a professional blog editor, your task is to select the best trending topic from the list below for our next blog post.

Here are the current trending topics:
%s
Analyze these topics and select the ONE that would make the most engaging, valuable, and relevant blog post.
Consider factors like:
- Search intent (informational, commercial, etc.)
- Potential audience size
- Relevance to current events
- Staying power (not just a flash trend)
- Our ability to provide unique insights

You must return your response in valid JSON format only:
`+"```json"+`
{
  "selected_topic_number": 5,
  "reason": "This topic has high search volume and evergreen appeal..."
}
`+"```", list.String())

	text, err := c.sendRequest(ctx, "select_topic", system, []provider.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return 0, "", err
	}

	var sel struct {
		SelectedTopicNumber int    `json:"selected_topic_number"`
		Reason              string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(provider.ExtractJSON(text)), &sel); err != nil {
		return 0, "", fmt.Errorf("failed to parse selection: %w", err)
	}
	if sel.SelectedTopicNumber < 1 || sel.SelectedTopicNumber > len(keywords) {
		return 0, "", fmt.Errorf("selected topic number %d out of range", sel.SelectedTopicNumber)
	}
	return sel.SelectedTopicNumber - 1, sel.Reason, nil
}

// SelectTemplate asks the model for the best template given the catalog.
func (c *Client) SelectTemplate(ctx context.Context, keyword, catalogContext string) (string, error) {
	system := "You are a helpful AI assistant for a blog platform that matches topics to content templates."
	prompt := fmt.Sprintf(`Choose the most appropriate blog template for the topic %q from our template library.

TEMPLATE INFORMATION:
%s

You MUST pick one of the template keys listed above.

Return your response in valid JSON format only:
`+"```json"+`
{
  "template_key": "template2",
  "template_name": "Listicle",
  "reason": "This template works best for this topic because..."
}
`+"```", keyword, catalogContext)

	text, err := c.sendRequest(ctx, "select_template", system, []provider.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}

	var sel struct {
		TemplateKey string `json:"template_key"`
	}
	if err := json.Unmarshal([]byte(provider.ExtractJSON(text)), &sel); err != nil {
		return "", fmt.Errorf("failed to parse template selection: %w", err)
	}
	return sel.TemplateKey, nil
}

const contentSystemPrompt = "You are an expert content writer that specializes in creating SEO-optimized, engaging blog content in JSON format."

// GenerateContent asks the model for a full structured post.
func (c *Client) GenerateContent(ctx context.Context, req provider.ContentRequest) (models.Content, []provider.Message, error) {
	prompt := buildContentPrompt(req)
	history := []provider.Message{{Role: "user", Content: prompt}}

	text, err := c.sendRequest(ctx, "generate_content", contentSystemPrompt, history)
	if err != nil {
		return models.Content{}, nil, err
	}
	history = append(history, provider.Message{Role: "model", Content: text})

	var out models.Content
	if err := json.Unmarshal([]byte(provider.ExtractJSON(text)), &out); err != nil {
		return models.Content{}, history, fmt.Errorf("failed to parse content: %w", err)
	}
	return out, history, nil
}

// RepairContent continues the conversation asking for the missing fields.
func (c *Client) RepairContent(ctx context.Context, history []provider.Message, keyword string, missing []string) (models.Content, error) {
	prompt := fmt.Sprintf(`Your previous response was missing these required fields: %s.

Please regenerate the COMPLETE blog post content about %q in valid JSON format, ensuring you include ALL of these fields:
- title
- meta_description
- introduction
- table_of_contents
- sections (with h2, content, and subsections)
- conclusion
- faq

Return the FULL JSON content again.`, strings.Join(missing, ", "), keyword)

	msgs := append(append([]provider.Message{}, history...), provider.Message{Role: "user", Content: prompt})
	text, err := c.sendRequest(ctx, "repair_content", contentSystemPrompt, msgs)
	if err != nil {
		return models.Content{}, err
	}

	var out models.Content
	if err := json.Unmarshal([]byte(provider.ExtractJSON(text)), &out); err != nil {
		return models.Content{}, fmt.Errorf("failed to parse repaired content: %w", err)
	}
	return out, nil
}

// Chat answers an assistant message with prior turns as context.
func (c *Client) Chat(ctx context.Context, history []provider.Message, message string) (string, error) {
	system := "You are a helpful writing assistant for a blog platform. Help users draft, outline and improve blog content. Be concise and practical."
	msgs := append(append([]provider.Message{}, history...), provider.Message{Role: "user", Content: message})
	return c.sendRequest(ctx, "chat", system, msgs)
}

func buildContentPrompt(req provider.ContentRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Create a comprehensive, SEO-optimized blog post about %q using the %s template (%s).

You MUST return your content in a valid JSON format matching the following structure:

`+"```json"+`
{
  "title": "Engaging, SEO-optimized title with the keyword",
  "meta_description": "Compelling meta description under 160 characters that includes the keyword",
  "introduction": "Engaging introduction paragraph that hooks the reader and introduces the topic",
  "table_of_contents": ["First H2 heading", "Second H2 heading", "Third H2 heading"],
  "sections": [
    {
      "h2": "First main heading (H2)",
      "content": "Detailed, informative paragraph(s) for this section",
      "subsections": [
        {
          "h3": "Sub-heading (H3)",
          "content": "Content for this subsection",
          "list_items": ["First bullet point", "Second bullet point"]
        }
      ]
    }
  ],
  "conclusion": "Summary paragraph that reinforces the main points and includes a call to action",
  "faq": [
    {
      "question": "Common question about the topic?",
      "answer": "Detailed, helpful answer to the question"
    }
  ]
}
`+"```"+`

IMPORTANT GUIDELINES:
1. Create engaging, valuable content that genuinely helps the reader
2. Include the main keyword naturally throughout the content, especially in headings
3. Structure the content with proper H2 and H3 headings
4. Make all JSON fields valid - use escaped quotes and avoid trailing commas
5. Write at least 3-5 sections with H2 headings
6. Include 3-5 FAQs related to the topic
7. Write in a conversational but authoritative tone
`, req.Keyword, req.TemplateKey, req.TemplateName)

	if len(req.RequiredFields) > 0 {
		fmt.Fprintf(&sb, "\nThe JSON MUST include these fields: %s\n", strings.Join(req.RequiredFields, ", "))
	}
	if len(req.RelatedKeywords) > 0 {
		kw := req.RelatedKeywords
		if len(kw) > 20 {
			kw = kw[:20]
		}
		fmt.Fprintf(&sb, `
IMPORTANT FOR SEO: This topic is trending with these related keywords: %s
Incorporate these keywords naturally throughout your content where relevant:
- Include some in your H2 and H3 headings
- Use them in list items when appropriate
- Include them in the FAQ questions and answers
`, strings.Join(kw, ", "))
	}
	for i, excerpt := range req.ContextExcerpts {
		fmt.Fprintf(&sb, "\nBACKGROUND ARTICLE %d:\n%s\n", i+1, excerpt)
	}
	return sb.String()
}
