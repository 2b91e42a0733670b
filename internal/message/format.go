package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedID is returned for ids that are not Registry.Major.Minor.Key.
	ErrMalformedID = errors.New("malformed message id")
	// ErrUnknownMessage is returned when the registry or key is not loaded.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrArgCount is returned when the supplied args do not match the template.
	ErrArgCount = errors.New("message argument count mismatch")
)

// Formatted is a rendered message ready to be placed in an event record.
type Formatted struct {
	MessageID  string
	Message    string
	Severity   string
	Resolution string
	Args       []string
}

// ID is a parsed message identifier.
type ID struct {
	Registry string
	Major    string
	Minor    string
	Key      string
}

// ParseID splits "<Registry>.<Major>.<Minor>.<Key>".
func ParseID(id string) (ID, error) {
	parts := strings.Split(id, ".")
	if len(parts) != 4 {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	for _, p := range parts {
		if p == "" {
			return ID{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
		}
	}
	return ID{Registry: parts[0], Major: parts[1], Minor: parts[2], Key: parts[3]}, nil
}

// Format resolves messageID and substitutes %1..%N with args.
func (c *Catalog) Format(messageID string, args []string) (Formatted, error) {
	id, err := ParseID(messageID)
	if err != nil {
		return Formatted{}, err
	}
	entry, ok := c.Lookup(id.Registry, id.Key)
	if !ok {
		return Formatted{}, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if entry.Args != len(args) {
		return Formatted{}, fmt.Errorf("%w: %s wants %d, got %d", ErrArgCount, messageID, entry.Args, len(args))
	}

	text, err := substitute(entry.Message, args)
	if err != nil {
		return Formatted{}, fmt.Errorf("%s: %w", messageID, err)
	}

	return Formatted{
		MessageID:  messageID,
		Message:    text,
		Severity:   entry.Severity,
		Resolution: entry.Resolution,
		Args:       append([]string(nil), args...),
	}, nil
}

// substitute walks the template once so "%1" never matches inside "%10".
func substitute(tmpl string, args []string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(tmpl) && tmpl[j] >= '0' && tmpl[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(ch)
			continue
		}
		n, _ := strconv.Atoi(tmpl[i+1 : j])
		if n < 1 || n > len(args) {
			return "", fmt.Errorf("%w: placeholder %%%d", ErrArgCount, n)
		}
		b.WriteString(args[n-1])
		i = j - 1
	}
	return b.String(), nil
}
