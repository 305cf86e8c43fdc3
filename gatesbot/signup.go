package gatesbot

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// signupMarkerPattern matches the bolded "in line" marker that starts
	// a sign-up message, with or without a trailing colon.
	signupMarkerPattern = regexp.MustCompile(`(?i)\*\*in line:*\*\*`)

	// playerClassPattern matches one class segment of a sign-up line:
	// optional subclass words, a class word, and a level number.
	// Ex: "Arcane Trickster Rogue 3" or "Wizard 5".
	playerClassPattern = regexp.MustCompile(
		`(?P<subclass>(?:\w+ )*)(?P<class>\w+) (?P<level>\d+)`,
	)

	// readyMarkerPrefix starts a DM ready-queue sign-up message.
	readyMarkerPrefix = "**ready"
)

// ClassLevel is one class entry of a sign-up: "Arcane Trickster Rogue 3"
// parses to subclass "Arcane Trickster", class "Rogue", level 3. Absent
// parts are the literal string "None", matching the persisted document
// format.
type ClassLevel struct {
	Class    string `json:"class"`
	Subclass string `json:"subclass"`
	Level    int    `json:"level"`
}

// Signup is the structured result of parsing a sign-up line.
type Signup struct {
	TotalLevel int
	Classes    []ClassLevel
}

// IsSignupMessage reports whether content begins with the sign-up marker.
func IsSignupMessage(content string) bool {
	loc := signupMarkerPattern.FindStringIndex(content)
	return loc != nil && loc[0] == 0
}

// StripSignupMarker removes the sign-up marker, leaving the class list.
func StripSignupMarker(content string) string {
	return strings.TrimSpace(signupMarkerPattern.ReplaceAllString(content, ""))
}

// ParseSignup turns free sign-up text (marker already stripped) into class
// segments and a total level. Parsing is deliberately lenient: a segment
// whose level doesn't parse falls back to level 4, an empty class or
// subclass becomes "None", and text with no matching segments yields
// TotalLevel 0 with no classes (which resolves to tier 1). Malformed
// sign-ups never fail; moderators correct them manually.
func ParseSignup(text string) Signup {
	out := Signup{Classes: []ClassLevel{}}

	for _, match := range playerClassPattern.FindAllStringSubmatch(text, -1) {
		level, err := strconv.Atoi(strings.TrimSpace(match[len(match)-1]))
		if err != nil {
			level = 4
		}
		class := strings.TrimSpace(match[len(match)-2])
		if class == "" {
			class = "None"
		}
		subclass := strings.TrimSpace(match[1])
		if subclass == "" {
			subclass = "None"
		}

		out.TotalLevel += level
		out.Classes = append(
			out.Classes,
			ClassLevel{Class: class, Subclass: subclass, Level: level},
		)
	}

	return out
}

// IsReadyMessage reports whether content begins with the DM ready marker.
func IsReadyMessage(content string) bool {
	return strings.HasPrefix(strings.ToLower(content), readyMarkerPrefix)
}

// ParseReadyRanks extracts the rank note from a DM ready message, ex:
// "**Ready: 1-4**" yields "1-4".
func ParseReadyRanks(content string) string {
	s := strings.ToLower(content)
	s = strings.ReplaceAll(s, "*", "")
	s = strings.TrimPrefix(s, "ready")
	s = strings.TrimPrefix(s, ":")
	return strings.TrimSpace(s)
}
