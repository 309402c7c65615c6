package mailbeacon

import (
	"strings"

	"github.com/bl4ckh4nd/MailBeacon/types"
)

// Contact is one input record for email discovery. At least one of FullName
// or the FirstName/LastName pair is required; Domain takes a bare domain or
// a website URL.
type Contact struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Company   string `json:"company,omitempty"`
}

// names resolves the first and last name, preferring the explicit fields
// and filling gaps from FullName: with two or more tokens the first and
// last token are used, a single token stands in for both.
func (c Contact) names() (first, last string, err error) {
	first = strings.TrimSpace(c.FirstName)
	last = strings.TrimSpace(c.LastName)
	if first == "" || last == "" {
		parts := strings.Fields(c.FullName)
		switch {
		case len(parts) >= 2:
			if first == "" {
				first = parts[0]
			}
			if last == "" {
				last = parts[len(parts)-1]
			}
		case len(parts) == 1:
			if first == "" {
				first = parts[0]
			}
			if last == "" {
				last = parts[0]
			}
		}
	}
	if first == "" || last == "" {
		return "", "", types.NewError(types.KindInsufficientInput, "could not determine valid first and last names")
	}
	return first, last, nil
}
