package transform

// RawVariable is a variable record as returned by the listing endpoint.
// Value arrives base64 encoded on the wire and is decoded by the JSON codec.
type RawVariable struct {
	Name  string `json:"name"`
	Value []byte `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
}

// CanonicalVariable is a variable reshaped into environment variable form.
type CanonicalVariable struct {
	Key   string
	Value string
}

// KeyStyle selects how a leaf name is normalized into a key.
type KeyStyle string

const (
	// StyleDash upper-cases the leaf name and replaces dashes with underscores.
	StyleDash KeyStyle = "dash"
	// StyleSnake splits the leaf name into words on separators and case
	// boundaries, then joins them upper-cased with underscores.
	StyleSnake KeyStyle = "snake"
)
