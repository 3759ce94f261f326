package links

import "strings"

var DefaultDomains = []string{"teraboxlink.com", "1024terabox.com"}

// Validator accepts any text that contains one of Domains, case-insensitively.
// It is a substring check, not URL parsing: "see teraboxlink.com later" passes.
type Validator struct {
	// Domains falls back to DefaultDomains when empty
	Domains []string
}

func (v *Validator) domains() []string {
	if len(v.Domains) == 0 {
		return DefaultDomains
	}
	return v.Domains
}

func (v *Validator) IsValid(text string) bool {
	text = strings.ToLower(text)
	for _, d := range v.domains() {
		if d == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// SupportedList renders the domains as "- domain" lines for user-facing texts.
func (v *Validator) SupportedList() string {
	var sb strings.Builder
	for i, d := range v.domains() {
		if i > 0 {
			sb.WriteRune('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(d)
	}
	return sb.String()
}
