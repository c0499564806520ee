package tools

// Input types for the built-in tools. The jsonschema tags become the
// parameter descriptions the model sees.

// SearchWebInput is the parameter set for the searchWeb tool.
type SearchWebInput struct {
	Query string `json:"query" jsonschema:"the query to search the web for"`
}

// GenerateImageInput is the parameter set for the generateImage tool.
type GenerateImageInput struct {
	Prompt string `json:"prompt" jsonschema:"a detailed description of the image to generate"`
}

// ArxivInput is the parameter set for the arxivApiCaller tool.
type ArxivInput struct {
	Query string `json:"query" jsonschema:"the topic to search arXiv for"`
	Time  string `json:"time,omitempty" jsonschema:"optional submission time filter, YYYY or YYYY-MM"`
}

// WikipediaInput is the parameter set for the wikipediaSearch tool.
type WikipediaInput struct {
	Query string `json:"query" jsonschema:"the subject to look up on Wikipedia"`
}

// SlidesInput is the parameter set for the generateSlides tool.
type SlidesInput struct {
	Topic          string `json:"topic" jsonschema:"the topic the slide deck should cover"`
	NumberOfSlides int    `json:"numberOfSlides" jsonschema:"how many slides to generate, between 2 and 10"`
}

// ResearchInput is the parameter set for the researchReport tool.
type ResearchInput struct {
	Topic string `json:"topic" jsonschema:"the topic to research and report on"`
}
