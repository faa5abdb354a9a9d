package crew

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	RuleSSN           = "phi.ssn"
	RulePhone         = "phi.phone"
	RuleEmail         = "phi.email"
	RulePatientName   = "phi.patient_name"
	RuleProviderName  = "phi.provider_name"
	RuleConsent       = "consent.missing"
	RuleOutsideHours  = "timing.outside_hours"
	defaultOpenClock  = 8 * 60
	defaultCloseClock = 20 * 60
)

// Policy configures the compliance check. Business hours are minutes after
// midnight, the window is [BusinessStart, BusinessEnd).
type Policy struct {
	BusinessStart  int
	BusinessEnd    int
	RevokedConsent []string
}

func DefaultPolicy() Policy {
	return Policy{BusinessStart: defaultOpenClock, BusinessEnd: defaultCloseClock}
}

// InHours reports whether t falls inside the delivery window.
func (p Policy) InHours(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= p.BusinessStart && m < p.BusinessEnd
}

type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

type ComplianceReport struct {
	Approved   bool        `json:"approved"`
	Violations []Violation `json:"violations"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// ComplianceInput is what the compliance stage looks at. A zero DeliveryAt
// skips the business hours rule.
type ComplianceInput struct {
	Message    string
	PatientID  string
	DeliveryAt time.Time
}

var (
	templateRe = regexp.MustCompile(`\[[A-Z_]+\]`)

	// Salutation words that address nobody in particular.
	genericAddress = map[string]bool{
		"Valued": true, "Patient": true, "Patients": true, "Customer": true,
		"Client": true, "Friend": true, "Friends": true, "Family": true,
		"Member": true, "Guest": true, "Team": true, "Neighbor": true,
	}

	phiRules = []struct {
		rule   string
		re     *regexp.Regexp
		detail string
		allow  func(match string) bool
	}{
		{RuleSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "message contains a social security number", nil},
		{RulePhone, regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b|\+\d{10,15}\b`), "message contains a phone number", nil},
		{RuleEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "message contains an email address", nil},
		{RulePatientName, regexp.MustCompile(`\b(?:Hi|Hello|Hey|Dear|Good (?:morning|afternoon|evening))[,]?\s+[A-Z][a-z]+(?:\s+[A-Z]\.)?\s+[A-Z][a-z]+`), "message addresses the patient by full name", genericSalutation},
		{RuleProviderName, regexp.MustCompile(`\bDr\.?\s+[A-Z][a-z]+`), "message names a provider", nil},
	}
)

// CheckCompliance scans a reminder for protected health information and
// verifies consent and delivery timing. Bracketed template placeholders such
// as [PRACTICE_NAME] are ignored.
func CheckCompliance(in ComplianceInput, p Policy, now time.Time) ComplianceReport {
	text := templateRe.ReplaceAllString(norm.NFKC.String(in.Message), " ")

	rep := ComplianceReport{Violations: []Violation{}, CheckedAt: now}
	for _, r := range phiRules {
		for _, m := range r.re.FindAllString(text, -1) {
			if r.allow != nil && r.allow(m) {
				continue
			}
			rep.Violations = append(rep.Violations, Violation{Rule: r.rule, Detail: r.detail})
			break
		}
	}

	id := strings.TrimSpace(in.PatientID)
	switch {
	case id == "":
		rep.Violations = append(rep.Violations, Violation{Rule: RuleConsent, Detail: "no patient id on record"})
	case revoked(p.RevokedConsent, id):
		rep.Violations = append(rep.Violations, Violation{Rule: RuleConsent, Detail: "patient revoked reminder consent"})
	}

	if !in.DeliveryAt.IsZero() {
		if !p.InHours(in.DeliveryAt) {
			rep.Violations = append(rep.Violations, Violation{
				Rule:   RuleOutsideHours,
				Detail: fmt.Sprintf("delivery at %s is outside %s-%s", in.DeliveryAt.Format("15:04"), clockString(p.BusinessStart), clockString(p.BusinessEnd)),
			})
		}
	}

	rep.Approved = len(rep.Violations) == 0
	return rep
}

// genericSalutation reports whether a greeting match such as
// "Dear Valued Patient" uses a stock phrase instead of a name.
func genericSalutation(match string) bool {
	for _, w := range strings.Fields(match) {
		if genericAddress[strings.Trim(w, ",.")] {
			return true
		}
	}
	return false
}

func revoked(list []string, id string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), id) {
			return true
		}
	}
	return false
}

func clockString(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
