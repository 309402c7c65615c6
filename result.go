package mailbeacon

import "github.com/bl4ckh4nd/MailBeacon/types"

// Result is the full outcome of one discovery. FoundEmails is ordered by
// descending likelihood; MostLikelyEmail is empty when no candidate met the
// selection thresholds.
type Result struct {
	FoundEmails     []types.FoundEmail `json:"found_emails"`
	MostLikelyEmail string             `json:"most_likely_email,omitempty"`
	ConfidenceScore int                `json:"confidence_score"`
	MethodsUsed     []string           `json:"methods_used"`
	VerificationLog map[string]string  `json:"verification_log"`
}

// Selected returns the record for MostLikelyEmail.
// The second return value indicates whether a selection was made.
func (r *Result) Selected() (types.FoundEmail, bool) {
	if r.MostLikelyEmail == "" {
		return types.FoundEmail{}, false
	}
	for _, e := range r.FoundEmails {
		if e.Email == r.MostLikelyEmail {
			return e, true
		}
	}
	return types.FoundEmail{}, false
}

// Alternatives returns up to max ranked addresses other than the selected
// one, in ranking order.
func (r *Result) Alternatives(max int) []string {
	if max <= 0 {
		return nil
	}
	var out []string
	for _, e := range r.FoundEmails {
		if e.Email == r.MostLikelyEmail {
			continue
		}
		out = append(out, e.Email)
		if len(out) == max {
			break
		}
	}
	return out
}

// UsedMethod reports whether the given discovery method contributed
// evidence to this result.
func (r *Result) UsedMethod(method types.Method) bool {
	for _, m := range r.MethodsUsed {
		if m == method {
			return true
		}
	}
	return false
}

func (r *Result) markMethod(method types.Method) {
	if !r.UsedMethod(method) {
		r.MethodsUsed = append(r.MethodsUsed, method)
	}
}
