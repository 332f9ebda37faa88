package api

import "github.com/oggyb/muzz-matchmaking/internal/db"

// ProfileOf builds the public view of a user.
func ProfileOf(u db.User) Profile {
	return Profile{
		Username:  u.Username,
		Gender:    u.Gender,
		Age:       u.Age,
		Country:   u.Country,
		City:      u.City,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
	}
}

func PreferencesOf(p *db.MatchmakingPreferences) Preferences {
	return Preferences{
		Mode:             p.Mode,
		Age:              p.Age,
		Country:          p.Country,
		City:             p.City,
		MinAge:           p.MinAge,
		MaxAge:           p.MaxAge,
		AllowedCountries: p.AllowedCountries,
		Interests:        p.Interests,
		OpenToAny:        p.OpenToAny,
	}
}

func QuestionOf(q db.QuestionnaireQuestion) Question {
	return Question{
		ID:           q.ID,
		Text:         q.Text,
		Type:         q.Type,
		Options:      q.Options,
		Weight:       q.Weight,
		DisplayOrder: q.DisplayOrder,
	}
}

// IntroductionOf builds the view of a candidate row for its owner.
func IntroductionOf(c db.Candidate, counterpart db.User) Introduction {
	r := c.Reasons.Data()
	return Introduction{
		ID:        c.ID,
		Profile:   ProfileOf(counterpart),
		Score:     c.Score,
		Signals:   nonNil(r.Signals),
		Reasons:   nonNil(r.Reasons),
		Status:    string(c.Status),
		MatchDate: c.MatchDate,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
