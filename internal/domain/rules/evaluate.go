package rules

import "github.com/ivankudzin/groupguard/internal/domain/model"

// Violation classifies why a message breaks a chat's policy.
type Violation string

const (
	ViolationNone    Violation = ""
	ViolationLink    Violation = "link"
	ViolationForward Violation = "forward"
)

// Evaluate classifies a message against a chat policy. Pure function, no I/O.
//
// Precedence: the link check runs first and wins; a message that is both a
// forbidden link and a forward is classified as a link violation.
func Evaluate(msg model.Message, policy model.ChatPolicy) Violation {
	if msg.SenderID == 0 {
		return ViolationNone
	}

	if policy.LinkFilterEnabled && HasForbiddenLink(msg.Text, policy.WhitelistedDomains) {
		return ViolationLink
	}
	if policy.ForwardFilterEnabled && msg.Forward.Present() {
		return ViolationForward
	}
	return ViolationNone
}
