package registry

import (
	"github.com/harmonium-app/plugin-registry/pkg/plugins"
)

// SchemaVersion identifies the registry document format.
const SchemaVersion = "1"

// Entry is one validated plugin as persisted in the registry. Curated
// and Verified are always false for auto-discovered entries, and
// Downloads is a placeholder populated out-of-band by the download
// tracker.
type Entry struct {
	Manifest    plugins.Manifest `json:"manifest"`
	Curated     bool             `json:"curated"`
	Verified    bool             `json:"verified"`
	Repo        string           `json:"repo"`
	ManifestURL string           `json:"manifest_url"`
	Stars       int              `json:"stars"`
	Downloads   int64            `json:"downloads"`
	LastUpdated string           `json:"lastUpdated"`
}

// Document is the built registry artifact. Plugins are ordered by
// discovery order and the document is overwritten wholesale on every
// successful build, never merged with a prior version.
type Document struct {
	Version   string  `json:"version"`
	UpdatedAt string  `json:"updated_at"`
	Plugins   []Entry `json:"plugins"`
}
