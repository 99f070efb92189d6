package domain

// ParamSpec describes one declared crawler parameter
type ParamSpec struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
}

// CrawlerDefinition is the metadata for an installed crawler, read from its
// definition file. The ID is the crawler's directory name.
type CrawlerDefinition struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Version     string               `json:"version"`
	Author      string               `json:"author"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	WebSupport  bool                 `json:"web_support"`

	// EntryPoint is the entry-point file name within the crawler directory.
	// A definition may override the default via the "entrypoint" field.
	EntryPoint string `json:"entrypoint,omitempty"`

	// Dir is the absolute path of the crawler directory, filled in by the
	// registry rather than read from the definition file.
	Dir string `json:"-"`
}
