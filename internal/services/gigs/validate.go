package gigs

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"

	"github.com/gigflow/gigflow-api/internal/apperr"
	"github.com/gigflow/gigflow-api/internal/models"
)

const (
	minTitle       = 10
	maxTitle       = 100
	minDescription = 50
	maxDescription = 2000
	minBudget      = 10
	maxBudget      = 100000
)

func checkTitle(fe apperr.FieldErrors, title string) {
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		fe.Add("title", "Gig title is required")
	case n < minTitle:
		fe.Add("title", "Title must be at least 10 characters")
	case n > maxTitle:
		fe.Add("title", "Title cannot exceed 100 characters")
	}
}

func checkDescription(fe apperr.FieldErrors, desc string) {
	switch n := utf8.RuneCountInString(desc); {
	case n == 0:
		fe.Add("description", "Description is required")
	case n < minDescription:
		fe.Add("description", "Description must be at least 50 characters")
	case n > maxDescription:
		fe.Add("description", "Description cannot exceed 2000 characters")
	}
}

func checkBudget(fe apperr.FieldErrors, budget float64) {
	if budget < minBudget {
		fe.Add("budget", "Budget must be at least $10")
	} else if budget > maxBudget {
		fe.Add("budget", "Budget cannot exceed $100,000")
	}
}

func checkCategory(fe apperr.FieldErrors, category string) {
	if category == "" {
		fe.Add("category", "Category is required")
	} else if !models.ValidCategory(category) {
		fe.Add("category", "Unknown category")
	}
}

func checkDeadline(fe apperr.FieldErrors, deadline, now time.Time) {
	if deadline.IsZero() {
		fe.Add("deadline", "Deadline is required")
	} else if !deadline.After(now) {
		fe.Add("deadline", "Deadline must be in the future")
	}
}

// cleanSkills trims every skill and drops the empty ones.
func cleanSkills(in []string) datatypes.JSONSlice[string] {
	out := datatypes.JSONSlice[string]{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
