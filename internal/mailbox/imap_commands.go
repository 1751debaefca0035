package mailbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/utf7"
)

const (
	gmailAllMail = "[Gmail]/All Mail"

	fetchGmailThreadID imap.FetchItem = "X-GM-THRID"
)

// gmailSearch is a UID SEARCH on one of Gmail's X-GM-* attributes.
// Value is written as is, so label names must already be quoted.
type gmailSearch struct {
	Atom  string
	Value string
}

func (s *gmailSearch) Command() *imap.Command {
	return &imap.Command{
		Name:      "UID SEARCH",
		Arguments: []interface{}{imap.RawString(s.Atom + " " + s.Value)},
	}
}

// gmailStoreLabels adds or removes Gmail labels on a UID set
type gmailStoreLabels struct {
	SeqSet *imap.SeqSet
	Add    bool
	Labels []string
}

func (s *gmailStoreLabels) Command() *imap.Command {
	op := "-X-GM-LABELS"
	if s.Add {
		op = "+X-GM-LABELS"
	}

	quoted := make([]string, 0, len(s.Labels))
	for _, label := range s.Labels {
		quoted = append(quoted, quoteLabel(label))
	}

	return &imap.Command{
		Name:      "UID STORE",
		Arguments: []interface{}{s.SeqSet, imap.RawString(op), imap.RawString("(" + strings.Join(quoted, " ") + ")")},
	}
}

// encodeLabel converts a label name to IMAP modified UTF-7
func encodeLabel(label string) (string, error) {
	encoded, err := utf7.Encoding.NewEncoder().String(label)
	if err != nil {
		return "", fmt.Errorf("failed to encode label %q: %w", label, err)
	}
	return encoded, nil
}

// quoteLabel renders an encoded label as an IMAP quoted string
func quoteLabel(label string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(label)
	return `"` + escaped + `"`
}

// parseIDValue normalizes an X-GM-* fetch value to its decimal string form
func parseIDValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case uint64:
		return strconv.FormatUint(value, 10)
	case uint32:
		return strconv.FormatUint(uint64(value), 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}
