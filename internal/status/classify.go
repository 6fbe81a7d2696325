package status

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

type phrase struct {
	text   string
	status Status
}

// phrases maps common model outputs to a Status. When several phrases occur in one
// value the earliest entry wins, so outcomes are listed before the stages leading to them.
var phrases = []phrase{
	{"rejected", Rejected},
	{"rejection", Rejected},
	{"not selected", Rejected},
	{"unsuccessful", Rejected},
	{"declined", Rejected},
	{"not moving forward", Rejected},
	{"position filled", Rejected},
	{"closed", Rejected},

	{"interview", Interview},
	{"interview scheduled", Interview},
	{"phone screen", Interview},
	{"technical interview", Interview},
	{"onsite", Interview},
	{"final round", Interview},
	{"hiring manager", Interview},

	{"oa", AssessmentInvite},
	{"oa invite", AssessmentInvite},
	{"online assessment", AssessmentInvite},
	{"coding challenge", AssessmentInvite},
	{"assessment", AssessmentInvite},
	{"hackerrank", AssessmentInvite},
	{"codility", AssessmentInvite},
	{"codesignal", AssessmentInvite},
	{"take home", AssessmentInvite},
	{"technical assessment", AssessmentInvite},

	{"submitted", Submitted},
	{"application received", Submitted},
	{"application submitted", Submitted},
	{"pending", Submitted},
	{"under review", Submitted},
	{"received", Submitted},
	{"confirmed", Submitted},
	{"applied", Submitted},

	{"n/a", Unknown},
	{"na", Unknown},
	{"unknown", Unknown},
	{"unclear", Unknown},
	{"other", Unknown},
}

var (
	direct    map[string]Status
	padded    []string
	matcherMu sync.Mutex
	matcher   *ahocorasick.Matcher
)

func init() {
	direct = make(map[string]Status, len(phrases))
	padded = make([]string, 0, len(phrases))
	for _, p := range phrases {
		if _, ok := direct[p.text]; !ok {
			direct[p.text] = p.status
		}
		padded = append(padded, " "+p.text+" ")
	}
	matcher = ahocorasick.NewStringMatcher(padded)
}

// Classify maps a free-text status produced by the extractor to a Status.
//
// An exact phrase match wins. Otherwise the first table phrase that occurs in the value
// as a whole word or word sequence decides; "oa" therefore matches "oa link sent" but
// not "board", and "rejected after interview" is Rejected. Anything else is Unknown.
func Classify(raw string) Status {
	value := foldStatus(raw)
	if value == "" {
		return Unknown
	}
	if s, ok := direct[value]; ok {
		return s
	}

	matcherMu.Lock()
	hits := matcher.Match([]byte(" " + value + " "))
	matcherMu.Unlock()

	best := -1
	for _, idx := range hits {
		if idx < 0 || idx >= len(phrases) {
			continue
		}
		if best == -1 || idx < best {
			best = idx
		}
	}
	if best == -1 {
		return Unknown
	}
	return phrases[best].status
}

func foldStatus(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ',', '.', ';', ':', '(', ')', '"', '\'':
			return ' '
		}
		return r
	}, value)
	return strings.Join(strings.Fields(value), " ")
}
