package usage

// RawTailLimit bounds the cleaned transcript kept on a Record for diagnostics.
const RawTailLimit = 1000

// Record is the structured usage snapshot extracted from one transcript.
//
// Every field defaults independently: a section that cannot be found leaves
// its fields at the zero value while the remaining sections are still filled.
// Percentages are passed through as parsed and are not clamped to 0-100.
type Record struct {
	SessionPercent int    `json:"session_percent"`
	SessionReset   string `json:"session_reset"`
	WeeklyPercent  int    `json:"weekly_percent"`
	WeeklyReset    string `json:"weekly_reset"`
	SonnetPercent  int    `json:"sonnet_percent"`
	Raw            string `json:"raw"`
}
