// Package lexicon provides the data-driven classification layer for Gadfly.
//
// Classification is deliberately dumb: case-insensitive substring matching
// against tunable marker lists. The lists live in a YAML document (validated
// against an embedded JSON schema) so the persona can be re-tuned without
// touching engine logic. An embedded default document keeps the bot usable
// with zero configuration.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

//go:embed default.yaml
var defaultYAML []byte

// Document is the on-disk shape of a lexicon file.
type Document struct {
	// Call markers address the persona directly (the bot handle is folded in
	// at compile time and does not need to appear here).
	Call []string `yaml:"call"`
	// Conflict markers signal an attack or escalation between participants.
	Conflict []string `yaml:"conflict"`
	// Defensive markers signal someone defending themselves.
	Defensive []string `yaml:"defensive"`
	// Pushback markers tell the persona to stop talking.
	Pushback []string `yaml:"pushback"`
	// Order markers indicate a line is already trying to restore order, which
	// suppresses the crowd calming prefix.
	Order []string `yaml:"order"`
	// Seeds are canned conversation starters used by the silence nudger.
	Seeds []string `yaml:"seeds"`
	// Greetings are canned daily-greeting lines.
	Greetings []string `yaml:"greetings"`
	// Acks are short acknowledgments sent in response to pushback.
	Acks []string `yaml:"acks"`
	// Closings are the remarks sent when a dialog session ends.
	Closings []string `yaml:"closings"`
	// Irony are rare self-deprecating tail lines appended to replies.
	Irony []string `yaml:"irony"`
	// Calming is the line prepended to crowd-mode replies.
	Calming string `yaml:"calming"`
}

// Set is a compiled lexicon ready for matching. All markers are stored
// lower-case; matching lower-cases the probe text once per call.
type Set struct {
	call      []string
	conflict  []string
	defensive []string
	pushback  []string
	order     []string

	// Canned-line pools, exposed for the engine/composer to draw from with
	// the content RNG.
	Seeds     []string
	Greetings []string
	Acks      []string
	Closings  []string
	Irony     []string
	Calming   string
}

// Flags is the classification result for a single message.
type Flags struct {
	IsCall      bool
	IsConflict  bool
	IsDefensive bool
}

// Load reads and compiles a lexicon file. When path is empty the embedded
// default document is used. The bot handle is appended to the call markers so
// mentions always classify as calls.
func Load(path, botHandle string) (*Set, error) {
	raw := defaultYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("lexicon: read %s: %w", path, err)
		}
		raw = data
	}
	return Parse(raw, botHandle)
}

// Parse decodes a lexicon YAML document, validates it against the embedded
// schema, and compiles it into a Set.
func Parse(data []byte, botHandle string) (*Set, error) {
	// Schema validation runs against the generic decoding so structural
	// errors are reported with JSON-pointer locations before the typed
	// decode can mask them.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("lexicon: parse yaml: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("lexicon: invalid document: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lexicon: decode: %w", err)
	}

	set := &Set{
		call:      lower(doc.Call),
		conflict:  lower(doc.Conflict),
		defensive: lower(doc.Defensive),
		pushback:  lower(doc.Pushback),
		order:     lower(doc.Order),
		Seeds:     doc.Seeds,
		Greetings: doc.Greetings,
		Acks:      doc.Acks,
		Closings:  doc.Closings,
		Irony:     doc.Irony,
		Calming:   doc.Calming,
	}
	if h := strings.ToLower(strings.TrimSpace(botHandle)); h != "" {
		set.call = append(set.call, h)
	}
	return set, nil
}

// compiledSchema is built once at package init; the schema is embedded and
// trusted, so a compile failure is a programming error.
var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("lexicon.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("lexicon: add schema resource: %v", err))
	}
	s, err := c.Compile("lexicon.schema.json")
	if err != nil {
		panic(fmt.Sprintf("lexicon: compile schema: %v", err))
	}
	return s
}

// Classify tags text with the semantic flags the engagement gate consumes.
// Pure and deterministic; empty text yields all-false.
func (s *Set) Classify(text string) Flags {
	t := strings.ToLower(text)
	if t == "" {
		return Flags{}
	}
	return Flags{
		IsCall:      containsAny(t, s.call),
		IsConflict:  containsAny(t, s.conflict),
		IsDefensive: containsAny(t, s.defensive),
	}
}

// IsPushback reports whether text contains a stop phrase. Evaluated before
// normal classification by the gate; a pushback mutes the conversation.
func (s *Set) IsPushback(text string) bool {
	return containsAny(strings.ToLower(text), s.pushback)
}

// HasOrderMarker reports whether a generated line already calls for order,
// which makes the crowd calming prefix redundant.
func (s *Set) HasOrderMarker(line string) bool {
	return containsAny(strings.ToLower(line), s.order)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.ToLower(strings.TrimSpace(s)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
