package logtail

import (
	"strings"
)

// LogRecord is one parsed event log line.
type LogRecord struct {
	ID           string
	Timestamp    string
	MessageID    string
	RegistryName string
	MessageKey   string
	Args         []string
}

// ParseLine turns a raw line into a record. Lines with an unparsable
// timestamp return ok=false without touching the cursor. Lines with a valid
// timestamp consume an id even when the message part is missing, so later ids
// do not depend on whether a malformed line was dropped.
func ParseLine(c *Cursor, line string) (LogRecord, bool) {
	id, _, ok := c.NextID(line)
	if !ok {
		return LogRecord{}, false
	}

	sp := strings.IndexByte(line, ' ')
	if sp < 0 || sp == len(line)-1 {
		return LogRecord{}, false
	}
	timestamp := line[:sp]
	fields := strings.Split(line[sp+1:], ",")
	messageID := strings.TrimSpace(fields[0])
	if messageID == "" {
		return LogRecord{}, false
	}

	rec := LogRecord{
		ID:        id,
		Timestamp: timestamp,
		MessageID: messageID,
		Args:      fields[1:],
	}
	if rec.Args == nil {
		rec.Args = []string{}
	}
	if dot := strings.IndexByte(messageID, '.'); dot > 0 {
		rec.RegistryName = messageID[:dot]
	} else {
		rec.RegistryName = messageID
	}
	rec.MessageKey = messageID[strings.LastIndexByte(messageID, '.')+1:]
	return rec, true
}
