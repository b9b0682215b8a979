package lexicon

import (
	"strings"
	"testing"
)

const validYAML = `
call: ["hey bot", "@bot"]
conflict: ["idiot", "nonsense"]
defensive: ["not my fault"]
pushback: ["shut up", "enough already"]
order: ["one at a time"]
seeds: ["seen any good films lately?"]
greetings: ["morning"]
acks: ["ok, ok"]
closings: ["anyway."]
calming: "Easy, everyone."
`

func TestClassify(t *testing.T) {
	set, err := Parse([]byte(validYAML), "gadfly")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	tests := []struct {
		name string
		text string
		want Flags
	}{
		{"plain message", "what time is the meeting?", Flags{}},
		{"call marker", "HEY BOT, you there?", Flags{IsCall: true}},
		{"bot handle folded in", "gadfly has opinions again", Flags{IsCall: true}},
		{"conflict", "that's complete NONSENSE", Flags{IsConflict: true}},
		{"defensive", "it's not my fault the build broke", Flags{IsDefensive: true}},
		{"multiple flags", "hey bot, he's an idiot", Flags{IsCall: true, IsConflict: true}},
		{"empty text", "", Flags{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsPushback(t *testing.T) {
	set, err := Parse([]byte(validYAML), "gadfly")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if !set.IsPushback("oh just SHUT UP already") {
		t.Error("expected pushback detection to be case-insensitive")
	}
	if set.IsPushback("the shutter on the camera broke") {
		// "shut up" is not a substring here.
		t.Error("expected no pushback without a stop phrase")
	}
}

func TestHasOrderMarker(t *testing.T) {
	set, err := Parse([]byte(validYAML), "gadfly")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if !set.HasOrderMarker("please, one at a time") {
		t.Error("expected order marker to match")
	}
	if set.HasOrderMarker("carry on, all at once") {
		t.Error("expected no order marker")
	}
}

func TestParseRejectsMissingSection(t *testing.T) {
	bad := strings.Replace(validYAML, "pushback:", "pushbock:", 1)
	if _, err := Parse([]byte(bad), "gadfly"); err == nil {
		t.Fatal("expected schema validation to reject a missing required section")
	}
}

func TestParseRejectsWrongType(t *testing.T) {
	bad := strings.Replace(validYAML, `calming: "Easy, everyone."`, "calming: [1, 2]", 1)
	if _, err := Parse([]byte(bad), "gadfly"); err == nil {
		t.Fatal("expected schema validation to reject a non-string calming line")
	}
}

func TestLoadEmbeddedDefault(t *testing.T) {
	set, err := Load("", "gadfly")
	if err != nil {
		t.Fatalf("Load embedded default: %v", err)
	}
	if len(set.Seeds) == 0 || len(set.Greetings) == 0 || len(set.Acks) == 0 || len(set.Closings) == 0 {
		t.Error("expected embedded default to populate every canned pool")
	}
	if got := set.Classify("gadfly, thoughts?"); !got.IsCall {
		t.Error("expected handle mention to classify as a call with the default lists")
	}
}

func TestMarkersAreTrimmedAndLowered(t *testing.T) {
	doc := strings.Replace(validYAML, `call: ["hey bot", "@bot"]`, `call: ["  Hey Bot  ", ""]`, 1)
	set, err := Parse([]byte(doc), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !set.Classify("hey bot!").IsCall {
		t.Error("expected padded mixed-case marker to still match")
	}
}
