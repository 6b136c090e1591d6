package storage

import (
	"github.com/conorfennell/qaforum/internal/digest"
	"github.com/conorfennell/qaforum/internal/domain"
)

// Counter values matching the seed collections.
const (
	defaultNextQuestionID int64 = 3
	defaultNextAnswerID   int64 = 4
	defaultNextUserID     int64 = 4
)

// DefaultUsers returns the seed accounts. Each call returns a fresh slice.
func DefaultUsers() []domain.User {
	return []domain.User{
		{ID: 1, Username: "admin", Password: digest.Hash("admin")},
		{ID: 2, Username: "user1", Password: digest.Hash("password1")},
		{ID: 3, Username: "user2", Password: digest.Hash("password2")},
	}
}

// DefaultQuestions returns the seed questions with nested answers.
func DefaultQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:      1,
			Content: "Comment utiliser AJAX avec JavaScript?",
			Author:  "user1",
			Date:    "2025-01-15T10:30:00",
			Answers: []domain.Answer{
				{
					ID:      1,
					Content: "AJAX permet de faire des requêtes HTTP asynchrones sans recharger la page.",
					Author:  "admin",
					Date:    "2025-01-15T11:00:00",
				},
			},
		},
		{
			ID:      2,
			Content: "Quelle est la meilleure façon d'apprendre le développement web?",
			Author:  "user2",
			Date:    "2025-01-14T14:20:00",
			Answers: []domain.Answer{
				{
					ID:      2,
					Content: "Je recommande de commencer par HTML, CSS et JavaScript, puis d'explorer des frameworks.",
					Author:  "user1",
					Date:    "2025-01-14T15:45:00",
				},
				{
					ID:      3,
					Content: "Pratiquez en créant des projets personnels, c'est la meilleure méthode!",
					Author:  "admin",
					Date:    "2025-01-14T16:30:00",
				},
			},
		},
	}
}

// DefaultNextIDs returns the counters that follow DefaultQuestions.
func DefaultNextIDs() domain.NextIDs {
	return domain.NextIDs{NextQuestionID: defaultNextQuestionID, NextAnswerID: defaultNextAnswerID}
}
