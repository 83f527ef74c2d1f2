package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

var exportHeader = []string{"roll_no", "name", "department", "status", "recorded_at", "session", "ref_code"}

// WriteCSV writes rows with a header line. Timestamps are RFC 3339 in UTC.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.RollNo,
			row.Name,
			row.Department,
			string(row.Status),
			row.RecordedAt.UTC().Format(time.RFC3339),
			sessionColumn(row),
			row.RefCode,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename returns a download name like "attendance-12-tech-fest.csv".
func ExportFilename(event Event, sessionID *int64) string {
	name := fmt.Sprintf("attendance-%d", event.ID)
	if slug := slugify(event.Name); slug != "" {
		name += "-" + slug
	}
	if sessionID != nil {
		name += fmt.Sprintf("-session-%d", *sessionID)
	}
	return name + ".csv"
}

func sessionColumn(row ExportRow) string {
	if row.SessionLabel != "" {
		return row.SessionLabel
	}
	if row.SessionID > 0 {
		return fmt.Sprintf("#%d", row.SessionID)
	}
	return ""
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
