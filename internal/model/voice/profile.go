package voice

import "strings"

// Profile identifies a speech-synthesis voice from the closed catalog below.
type Profile string

const (
	Ana         Profile = "en-US-AnaNeural"
	Aria        Profile = "en-US-AriaNeural"
	Guy         Profile = "en-US-GuyNeural"
	Roger       Profile = "en-US-RogerNeural"
	Christopher Profile = "en-US-ChristopherNeural"
	Jenny       Profile = "en-US-JennyNeural"
)

// Default is substituted whenever a classifier answer is not a known profile.
// Answers are matched exactly and case-sensitively after trimming surrounding whitespace.
const Default = Ana

// Deep is the profile spoken with lowered pitch and slowed rate.
const Deep = Christopher

// Prosody holds the SSML adjustments passed to the synthesizer.
type Prosody struct {
	Rate  string `json:"rate"`
	Pitch string `json:"pitch"`
}

var (
	neutralProsody = Prosody{Rate: "+0%", Pitch: "+0Hz"}
	deepProsody    = Prosody{Rate: "-10%", Pitch: "-10Hz"}
)

// Entry describes a catalog voice to the classifier and the frontend.
type Entry struct {
	Profile     Profile `json:"id"`
	Description string  `json:"description"`
	Prosody     Prosody `json:"prosody"`
}

var catalog = []Entry{
	{Profile: Ana, Description: "small, cute, childlike creatures"},
	{Profile: Aria, Description: "bright, friendly, graceful creatures"},
	{Profile: Guy, Description: "energetic, brave, sporty creatures"},
	{Profile: Roger, Description: "playful, mischievous, cheeky creatures"},
	{Profile: Christopher, Description: "big, deep, scary or aggressive creatures"},
	{Profile: Jenny, Description: "calm, gentle, wise creatures"},
}

// Catalog returns every known profile with its description and prosody.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	for i, entry := range catalog {
		entry.Prosody = entry.Profile.Prosody()
		out[i] = entry
	}
	return out
}

// Profiles lists the identifiers of the catalog in order.
func Profiles() []Profile {
	out := make([]Profile, len(catalog))
	for i, entry := range catalog {
		out[i] = entry.Profile
	}
	return out
}

// Identifiers lists the catalog identifiers as plain strings.
func Identifiers() []string {
	out := make([]string, len(catalog))
	for i, entry := range catalog {
		out[i] = string(entry.Profile)
	}
	return out
}

// Parse returns the profile whose identifier exactly equals raw, ignoring surrounding whitespace.
func Parse(raw string) (Profile, bool) {
	candidate := Profile(strings.TrimSpace(raw))
	for _, entry := range catalog {
		if entry.Profile == candidate {
			return candidate, true
		}
	}
	return "", false
}

// ParseOrDefault is Parse with the Default substituted on mismatch.
func ParseOrDefault(raw string) Profile {
	if p, ok := Parse(raw); ok {
		return p
	}
	return Default
}

// Valid reports whether p belongs to the catalog.
func (p Profile) Valid() bool {
	_, ok := Parse(string(p))
	return ok && strings.TrimSpace(string(p)) == string(p)
}

// Prosody returns the static rate and pitch adjustments for p.
func (p Profile) Prosody() Prosody {
	if p == Deep {
		return deepProsody
	}
	return neutralProsody
}

// Locale extracts the language tag from the identifier, e.g. "en-US".
func (p Profile) Locale() string {
	parts := strings.SplitN(string(p), "-", 3)
	if len(parts) < 3 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

// ShortName is the voice name without its locale, e.g. "AriaNeural".
func (p Profile) ShortName() string {
	parts := strings.SplitN(string(p), "-", 3)
	if len(parts) < 3 {
		return string(p)
	}
	return parts[2]
}
