package forum

import (
	"sort"
	"time"

	"github.com/conorfennell/qaforum/internal/domain"
)

// Accepted date layouts. Timestamps without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDate returns the zero time for dates it cannot read, which sorts
// them after every real date in descending order.
func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// sortQuestions orders questions and their answers newest first. Equal
// dates keep their stored order.
func sortQuestions(questions []domain.Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return parseDate(questions[i].Date).After(parseDate(questions[j].Date))
	})
	for i := range questions {
		answers := questions[i].Answers
		sort.SliceStable(answers, func(a, b int) bool {
			return parseDate(answers[a].Date).After(parseDate(answers[b].Date))
		})
	}
}
