package chatlist

import (
	"fmt"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/fathima-sithara/chatlist-service/internal/domain"
)

const (
	DefaultAvatar     = "asset://logo.png"
	DefaultTimeLayout = "3:04:05 PM"
)

// TimeFormatter renders a message timestamp for display.
type TimeFormatter func(time.Time) string

func LayoutFormatter(layout string, loc *time.Location) TimeFormatter {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	if loc == nil {
		loc = time.Local
	}
	return func(t time.Time) string { return t.In(loc).Format(layout) }
}

// MapRecords turns aggregation records into rows keeping their order.
func MapRecords(records []domain.LatestMessageRecord, format TimeFormatter) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		if rec.OtherUserID == "" || rec.Content == nil || rec.Timestamp == nil {
			return nil, fmt.Errorf("%w: record %d is missing required fields", apperr.ErrMalformed, i)
		}
		rows = append(rows, Row{
			UserID:      rec.OtherUserID,
			Name:        orDefault(rec.Name, domain.UnknownName),
			LastMessage: *rec.Content,
			Timestamp:   *rec.Timestamp,
			TimeLabel:   format(*rec.Timestamp),
			Avatar:      orDefault(rec.ProfilePicture, DefaultAvatar),
		})
	}
	return rows, nil
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
