package plugins

// RawManifest is the untyped decoded form of a plugin.json document as
// published in a plugin repository. No key is guaranteed to be present;
// it exists only for the duration of one fetch+validate cycle.
type RawManifest map[string]any

// PluginType defines the execution format of a plugin
type PluginType string

const (
	PluginTypeJS   PluginType = "js"
	PluginTypeWASM PluginType = "wasm"
)

// Category defines the optional store category of a plugin
type Category string

const (
	CategoryAudio   Category = "audio"
	CategoryUI      Category = "ui"
	CategoryLyrics  Category = "lyrics"
	CategoryLibrary Category = "library"
	CategoryUtility Category = "utility"
)

// Manifest is the normalized, strongly-typed form of an accepted plugin
// manifest as it appears inside a registry entry.
type Manifest struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	Type        PluginType `json:"type"`
	Entry       string     `json:"entry"`
	Permissions []string   `json:"permissions"`
	UI          []string   `json:"ui,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Homepage    string     `json:"homepage"`
	Category    Category   `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	License     string     `json:"license"`
}
