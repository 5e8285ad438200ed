// Package convert defines the Converter contract consumed by the
// Ingestor (spec §4.5/§6) and the two converters this repository
// implements in full: a Markdown passthrough and a plain-text shell.
// Format-specific converters (PDF, DOCX, PPTX) are out of scope.
package convert

// Input is an immutable view over a candidate file's raw bytes.
// Converters must not retain or mutate it.
type Input struct {
	RelPath  string
	Mime     string
	Ext      string
	Bytes    []byte
	MaxBytes int64
}

// Meta carries the converter's identity and any non-fatal warnings
// produced during conversion, for the Ingestor to attach to the
// resulting Document row.
type Meta struct {
	ConverterID      string
	ConverterVersion string
	SourceMime       string
	Warnings         []string
}

// Result is a converter's successful output: Markdown is pre-canonical
// (the Ingestor runs the single canonicalization pass afterward), and
// Title is a best-effort human title for the document.
type Result struct {
	Markdown string
	Title    string
	Meta     Meta
}

// Converter is the capability-set contract of spec §4.5/§6: CanHandle
// decides eligibility from MIME and extension, Convert does the work.
// No side effects are permitted; a Converter never writes files or
// mutates global state.
type Converter interface {
	CanHandle(mime, ext string) bool
	Convert(input Input) (*Result, error)
}
