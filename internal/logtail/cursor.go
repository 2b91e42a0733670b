// Package logtail follows the management event log file and turns newly
// appended lines into LogRecords with stable, de-duplicated ids.
package logtail

import (
	"strconv"
	"time"
)

// TimestampLayout is the fixed-format prefix every log line starts with.
// Anything after the first 19 bytes (fractional seconds, zone offset) is ignored
// for id purposes.
const TimestampLayout = "2006-01-02T15:04:05"

// Cursor is the tailer's resumable position. It is owned by one Tailer and
// must only be touched from the goroutine running that tailer's read passes.
type Cursor struct {
	// ByteOffset is the end of the last fully consumed line.
	ByteOffset int64 `json:"byte_offset"`
	// LastTimestamp is the unix time of the last id handed out.
	LastTimestamp int64 `json:"last_timestamp"`
	// LastIndex is the same-second counter for LastTimestamp.
	LastIndex int `json:"last_index"`
}

// NextID computes the unique id for line and advances the id state.
// ok is false when the timestamp prefix cannot be parsed; the cursor is left
// untouched in that case.
func (c *Cursor) NextID(line string) (id string, ts time.Time, ok bool) {
	if len(line) < len(TimestampLayout) {
		return "", time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, line[:len(TimestampLayout)], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}

	unix := ts.Unix()
	index := 0
	if unix == c.LastTimestamp {
		index = c.LastIndex + 1
	}
	c.LastTimestamp = unix
	c.LastIndex = index

	id = strconv.FormatInt(unix, 10)
	if index > 0 {
		id += "_" + strconv.Itoa(index)
	}
	return id, ts, true
}

// Reset rewinds the byte offset for a freshly created file. The id state is
// kept so ids stay unique across rotation.
func (c *Cursor) Reset() {
	c.ByteOffset = 0
}
