package eligibility

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// NoteDateLayout is the DD/MM/YYYY layout used inside building notes.
const NoteDateLayout = "02/01/2006"

var yearIncreaseLine = regexp.MustCompile(`^\w+ Year Increase:`)

// ParseBuildingNotes extracts AGI records from building notes. Each note
// holds at most one record, written one field per line:
//
//	AGI: Approved
//	Date of Completion: 15/01/2023
//	Date of First Increase: 01/03/2023
//	First Year Increase: 3%
//	Second Year Increase: 2.5%
func ParseBuildingNotes(notes []upstream.Note) []domain.AgiRecord {
	var records []domain.AgiRecord
	for _, n := range notes {
		text := strings.TrimSpace(n.Note)
		if text == "" {
			continue
		}
		var rec domain.AgiRecord
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "AGI:"):
				rec.ApprovalStatus = noteValue(line)
			case strings.HasPrefix(line, "Date of Completion:"):
				rec.CompletionDate = noteDate(line, n.ID)
			case strings.HasPrefix(line, "Date of First Increase:"):
				rec.FirstIncrease = noteDate(line, n.ID)
			case yearIncreaseLine.MatchString(line):
				pct, err := decimal.NewFromString(strings.TrimSuffix(noteValue(line), "%"))
				if err != nil {
					log.Warn().Err(err).Int64("note_id", n.ID).Str("line", line).Msg("Unparsable yearly AGI increase")
					continue
				}
				rec.YearlyPercentages = append(rec.YearlyPercentages, pct)
			}
		}
		if rec.ApprovalStatus != "" || rec.CompletionDate != nil || rec.FirstIncrease != nil || len(rec.YearlyPercentages) > 0 {
			records = append(records, rec)
		}
	}
	return records
}

func noteValue(line string) string {
	_, v, _ := strings.Cut(line, ":")
	return strings.TrimSpace(v)
}

func noteDate(line string, noteID int64) *time.Time {
	t, err := time.Parse(NoteDateLayout, noteValue(line))
	if err != nil {
		log.Warn().Int64("note_id", noteID).Str("line", line).Msg("Unparsable AGI date")
		return nil
	}
	return &t
}

// LeaseMarkers is what a lease's notes say about its increase.
type LeaseMarkers struct {
	AgiYears   []int
	NoIncrease bool
}

// ParseLeaseNotes reads "AGI <year>" markers and the "No AGI" or
// "No Increase" opt-outs.
func ParseLeaseNotes(notes []upstream.Note) LeaseMarkers {
	var m LeaseMarkers
	for _, n := range notes {
		text := strings.TrimSpace(n.Note)
		switch {
		case strings.HasPrefix(text, "No AGI"), strings.HasPrefix(text, "No Increase"):
			m.NoIncrease = true
		case strings.HasPrefix(text, "AGI"):
			fields := strings.Fields(text)
			if len(fields) < 2 {
				continue
			}
			year, err := strconv.Atoi(fields[1])
			if err != nil {
				log.Debug().Int64("note_id", n.ID).Str("note", text).Msg("Lease note is not an AGI year marker")
				continue
			}
			m.AgiYears = append(m.AgiYears, year)
		}
	}
	return m
}

// ApprovalOf is Not Approved when any record is, otherwise Approved.
func ApprovalOf(records []domain.AgiRecord) domain.AgiType {
	for _, r := range records {
		if r.ApprovalStatus == string(domain.AgiNotApproved) {
			return domain.AgiNotApproved
		}
	}
	return domain.AgiApproved
}
