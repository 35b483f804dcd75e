package gmail

// Header is a single name/value pair from a message payload.
type Header struct {
	Name  string
	Value string
}

// Message holds the parts of a Gmail message the bot looks at.
type Message struct {
	ID           string
	ThreadID     string
	Snippet      string
	InternalDate int64    // ms since epoch, used for ordering
	Headers      []Header // nil when the payload carried no header collection
}

// Header returns the value of the first header whose name matches exactly.
func (m *Message) Header(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, h := range m.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}
