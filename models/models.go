package models

// Content is the structured blog payload the generation provider returns.
// It is persisted verbatim (jsonb) next to the rendered HTML so posts can be
// re-rendered when a template changes.
type Content struct {
	TemplateType    string    `json:"template_type,omitempty"`
	Title           string    `json:"title"`
	MetaDescription string    `json:"meta_description"`
	Introduction    string    `json:"introduction"`
	TableOfContents []string  `json:"table_of_contents"`
	Sections        []Section `json:"sections"`
	Conclusion      string    `json:"conclusion"`
	FAQ             []FAQItem `json:"faq"`
}

// Section is a top-level H2 block.
type Section struct {
	Type        string       `json:"type,omitempty"` // introduction, step, list_item, section, conclusion
	H2          string       `json:"h2,omitempty"`
	Content     string       `json:"content"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

// Subsection is an H3 block nested under a section.
type Subsection struct {
	H3        string   `json:"h3,omitempty"`
	Content   string   `json:"content"`
	ListItems []string `json:"list_items,omitempty"`
}

// FAQItem is a question/answer pair appended after the body.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Field reports whether a named top-level content field is populated.
// Field names follow the JSON keys the provider is prompted with.
func (c Content) Field(name string) bool {
	switch name {
	case "title":
		return c.Title != ""
	case "meta_description":
		return c.MetaDescription != ""
	case "introduction":
		return c.Introduction != ""
	case "table_of_contents":
		return len(c.TableOfContents) > 0
	case "sections":
		return len(c.Sections) > 0
	case "conclusion":
		return c.Conclusion != ""
	case "faq":
		return len(c.FAQ) > 0
	default:
		return false
	}
}

// MissingFields returns the subset of required that Field reports absent.
func (c Content) MissingFields(required []string) []string {
	var missing []string
	for _, f := range required {
		if !c.Field(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
