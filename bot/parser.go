package bot

import "regexp"

var commandSubject = regexp.MustCompile(`^cmd: (\w+)$`)

// Reason says why a subject/sender pair did or did not yield a command.
type Reason int

const (
	Matched Reason = iota
	MissingSender
	UnauthorizedSender
	MissingSubject
	MalformedSubject
)

func (r Reason) String() string {
	switch r {
	case Matched:
		return "matched"
	case MissingSender:
		return "missing sender"
	case UnauthorizedSender:
		return "unauthorized sender"
	case MissingSubject:
		return "missing subject"
	case MalformedSubject:
		return "malformed subject"
	default:
		return "unknown"
	}
}

// ParseResult is the outcome of classifying one message.
// Token is only set when Reason is Matched.
type ParseResult struct {
	Token  string
	Reason Reason
}

func (r ParseResult) Matched() bool { return r.Reason == Matched }

// Parser accepts commands from a single allowed sender.
type Parser struct {
	allowed string
}

func NewParser(allowedSender string) *Parser {
	return &Parser{allowed: allowedSender}
}

// Classify checks the sender first, then the subject grammar.
// The sender must equal the allowed address byte for byte.
func (p *Parser) Classify(sender, subject string) ParseResult {
	switch {
	case sender == "":
		return ParseResult{Reason: MissingSender}
	case sender != p.allowed:
		return ParseResult{Reason: UnauthorizedSender}
	case subject == "":
		return ParseResult{Reason: MissingSubject}
	}
	m := commandSubject.FindStringSubmatch(subject)
	if m == nil {
		return ParseResult{Reason: MalformedSubject}
	}
	return ParseResult{Token: m[1], Reason: Matched}
}

// Parse returns the command token, or false if the message carries no
// command that this parser will act on.
func (p *Parser) Parse(sender, subject string) (string, bool) {
	r := p.Classify(sender, subject)
	return r.Token, r.Matched()
}
