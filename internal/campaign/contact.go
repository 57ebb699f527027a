package campaign

import "strings"

// seniorityRanks maps role keywords to contact priority. First match wins,
// so more senior keywords come first.
var seniorityRanks = []struct {
	keyword  string
	priority int
}{
	{"chief", 90},
	{"ceo", 90},
	{"cto", 90},
	{"coo", 90},
	{"cfo", 90},
	{"founder", 85},
	{"owner", 85},
	{"president", 80},
	{"vice president", 70},
	{"vp", 70},
	{"head of", 60},
	{"director", 60},
	{"manager", 40},
	{"lead", 35},
}

const defaultPriority = 10

// RolePriority derives a contact's outreach priority from their role title.
// Unknown titles get a floor priority rather than zero so a contact with any
// role still outranks one with none.
func RolePriority(role string) int {
	lowered := strings.ToLower(role)
	for _, rank := range seniorityRanks {
		if strings.Contains(lowered, rank.keyword) {
			return rank.priority
		}
	}
	if strings.TrimSpace(lowered) == "" {
		return 0
	}
	return defaultPriority
}
