package status

import (
	"strings"
)

// Status is the closed set of application outcomes, ordered by overwrite precedence.
type Status int

const (
	Unknown Status = iota
	Submitted
	AssessmentInvite
	Interview
	Rejected
)

// Labels match the dropdown values used by the tabular sink.
const (
	LabelUnknown          = "N/A"
	LabelSubmitted        = "Submitted Application - Pending Response"
	LabelAssessmentInvite = "OA Invite"
	LabelInterview        = "Interview"
	LabelRejected         = "Rejected"
)

var labels = map[Status]string{
	Unknown:          LabelUnknown,
	Submitted:        LabelSubmitted,
	AssessmentInvite: LabelAssessmentInvite,
	Interview:        LabelInterview,
	Rejected:         LabelRejected,
}

// All lists every status from lowest to highest precedence.
func All() []Status {
	return []Status{Unknown, Submitted, AssessmentInvite, Interview, Rejected}
}

// Priority returns the overwrite rank. Values outside the set rank as Unknown.
func (s Status) Priority() int {
	if !s.Valid() {
		return int(Unknown)
	}
	return int(s)
}

// Valid reports whether s is a member of the closed set.
func (s Status) Valid() bool {
	return s >= Unknown && s <= Rejected
}

// Label returns the sink representation.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return LabelUnknown
}

func (s Status) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case AssessmentInvite:
		return "assessment_invite"
	case Interview:
		return "interview"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ShouldUpdate reports whether candidate strictly outranks existing.
// Equal ranks never update, so re-observing a status is a no-op.
func ShouldUpdate(existing, candidate Status) bool {
	return candidate.Priority() > existing.Priority()
}

// ParseLabel maps a sink cell back to a Status. The second result is false when the
// value is not one of the known labels, in which case Unknown is returned.
func ParseLabel(value string) (Status, bool) {
	v := strings.TrimSpace(value)
	for s, l := range labels {
		if strings.EqualFold(v, l) {
			return s, true
		}
	}
	return Unknown, false
}
