package store

import (
	"bufio"
	"bytes"
	"strings"
)

// uidFromRaw extracts a bare "UID:" line from iCalendar or vCard bytes. The
// store only needs this for UID-uniqueness bookkeeping (spec.md §4.4.6
// rule 4); callers that need the fully parsed object go through
// pkg/ical/pkg/vcard instead.
func uidFromRaw(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(strings.ToUpper(line), "UID:") {
			return strings.TrimSpace(line[4:])
		}
	}
	return ""
}
