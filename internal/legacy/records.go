package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kittclouds/matlog/internal/store"
)

// instant decodes the serialized date forms found in old installs: RFC 3339
// strings, bare dates and unix milliseconds.
type instant struct {
	time.Time
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (i *instant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		i.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s", data)
		}
		i.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		i.Time = time.Time{}
		return nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			i.Time = t.UTC()
			return nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		i.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

type techniqueRecord struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Notes     string   `json:"notes"`
	Links     []string `json:"links"`
	Timestamp instant  `json:"timestamp"`
	SessionID string   `json:"sessionId"`
}

func (r techniqueRecord) toTechnique() *store.Technique {
	return &store.Technique{
		ID:        r.ID,
		Name:      r.Name,
		Category:  store.Category(r.Category),
		Tags:      r.Tags,
		Notes:     r.Notes,
		Links:     r.Links,
		Timestamp: r.Timestamp.Time,
		SessionID: r.SessionID,
	}
}

type sessionRecord struct {
	ID               string         `json:"id"`
	Date             instant        `json:"date"`
	Location         string         `json:"location"`
	Type             string         `json:"type"`
	Submissions      []string       `json:"submissions"`
	SubmissionCounts map[string]int `json:"submissionCounts"`
	Notes            string         `json:"notes"`
	Satisfaction     int            `json:"satisfaction"`
	TechniqueIDs     []string       `json:"techniqueIds"`
}

func (r sessionRecord) toSession() *store.TrainingSession {
	return &store.TrainingSession{
		ID:               r.ID,
		Date:             r.Date.Time,
		Location:         r.Location,
		Type:             store.SessionType(r.Type),
		Submissions:      r.Submissions,
		SubmissionCounts: r.SubmissionCounts,
		Notes:            r.Notes,
		Satisfaction:     r.Satisfaction,
		TechniqueIDs:     r.TechniqueIDs,
	}
}

// decodeArray splits a JSON array into raw elements so one malformed record
// does not hide the rest.
func decodeArray(blob string) ([]json.RawMessage, error) {
	if blob == "" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(blob), &items); err != nil {
		return nil, err
	}
	return items, nil
}
