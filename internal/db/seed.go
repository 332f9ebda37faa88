package db

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// seededTables are cleared children first.
var seededTables = []string{
	"conversation_openers", "chat_rooms", "matches", "match_candidates", "blocks",
	"matchmaking_preferences", "questionnaire_answers", "user_prompts", "users",
}

var (
	seedBios = []string{
		"Into music, coffee and long hikes.",
		"Coding by day, cooking by night.",
		"Travel addict and amateur photography fan.",
		"Gym, books and the occasional movies marathon.",
		"Gaming, art and reading on rainy days.",
	}
	seedCountries = []string{"UK", "UK", "UK", "IE"}
	seedCities    = []string{"London", "Manchester", "Leeds", "Dublin"}
)

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears every table the matching core owns plus users.
//  2. Seeds the questionnaire catalog.
//  3. Creates 20 users (10 male, 10 female) with hashed passwords, bios and one prompt.
//  4. Answers the full questionnaire for each user and stores dating preferences.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := clearTables(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	if _, err := SeedQuestions(db); err != nil {
		return err
	}
	var questions []QuestionnaireQuestion
	if err := db.Order("display_order").Find(&questions).Error; err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	for i := 1; i <= 20; i++ {
		gender, seeking := "male", "WOMEN"
		if i > 10 {
			gender, seeking = "female", "MEN"
		}
		if i%7 == 0 {
			seeking = "EVERYONE"
		}
		age := 21 + r.Intn(15)
		lastLogin := time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour)

		user := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			Gender:       gender,
			Seeking:      seeking,
			Active:       true,
			Bio:          seedBios[i%len(seedBios)],
			Age:          &age,
			Country:      seedCountries[i%len(seedCountries)],
			City:         seedCities[i%len(seedCities)],
			LastLoginAt:  &lastLogin,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		prompt := UserPrompt{UserID: user.ID, Text: seedBios[r.Intn(len(seedBios))]}
		if err := db.Create(&prompt).Error; err != nil {
			return fmt.Errorf("failed to seed prompt: %w", err)
		}

		for _, q := range questions {
			answer := QuestionnaireAnswer{UserID: user.ID, QuestionID: q.ID, Value: randomAnswer(r, q)}
			if err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "question_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&answer).Error; err != nil {
				return fmt.Errorf("failed to seed answer: %w", err)
			}
		}

		minAge, maxAge := 18, 45
		prefs := MatchmakingPreferences{
			UserID:    user.ID,
			Mode:      ModeDating,
			Age:       user.Age,
			Country:   user.Country,
			City:      user.City,
			MinAge:    &minAge,
			MaxAge:    &maxAge,
			OpenToAny: true,
		}
		if err := db.Create(&prefs).Error; err != nil {
			return fmt.Errorf("failed to seed preferences: %w", err)
		}
	}
	log.Println("Seeded 20 users with answers and preferences.")

	return nil
}

func randomAnswer(r *rand.Rand, q QuestionnaireQuestion) string {
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) > 0 {
			return q.Options[r.Intn(len(q.Options))]
		}
	case QuestionScale:
		return strconv.Itoa(1 + r.Intn(10))
	}
	return seedBios[r.Intn(len(seedBios))]
}

func clearTables(db *gorm.DB) error {
	for _, table := range seededTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Reset auto-increment sequences
	for _, table := range seededTables {
		switch db.Dialector.Name() {
		case "mysql":
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		case "sqlite":
			db.Exec("DELETE FROM sqlite_sequence WHERE name = ?", table)
		}
	}
	return nil
}
