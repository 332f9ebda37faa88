package db

import (
	"fmt"

	"gorm.io/gorm"
)

func mc(order int, text string, weight float64, options ...string) QuestionnaireQuestion {
	return QuestionnaireQuestion{DisplayOrder: order, Text: text, Type: QuestionMultipleChoice, Weight: weight, Options: options}
}

func scale(order int, text string, weight float64) QuestionnaireQuestion {
	return QuestionnaireQuestion{DisplayOrder: order, Text: text, Type: QuestionScale, Weight: weight}
}

func freeText(order int, text string, weight float64) QuestionnaireQuestion {
	return QuestionnaireQuestion{DisplayOrder: order, Text: text, Type: QuestionText, Weight: weight}
}

// DefaultQuestions is the questionnaire catalog. Scale questions use 1-10.
func DefaultQuestions() []QuestionnaireQuestion {
	return []QuestionnaireQuestion{
		mc(1, "What matters most to you in a relationship?", 1.5,
			"Trust and honesty", "Shared interests", "Emotional connection", "Independence", "Growth together"),
		mc(2, "How do you prefer to spend your weekends?", 1.0,
			"Outdoors and adventure", "Relaxing at home", "Socializing with friends", "Exploring new places", "Pursuing hobbies"),
		scale(3, "How important is it that your partner shares your political views?", 1.2),
		mc(4, "What's your ideal date night?", 1.0,
			"Dinner and conversation", "Active adventure", "Cultural event", "Cozy night in", "Something spontaneous"),
		scale(5, "How important is religion or spirituality in your life?", 1.0),
		mc(6, "How do you handle disagreements?", 1.3,
			"Talk it out immediately", "Need time to process first", "Prefer to avoid conflict", "Find a compromise quickly", "Seek outside perspective"),
		scale(7, "How often do you need alone time?", 1.0),
		mc(8, "What's your communication style?", 1.2,
			"Direct and straightforward", "Thoughtful and careful", "Expressive and emotional", "Reserved and private", "Adaptive to the situation"),
		mc(9, "How do you feel about pets?", 1.0,
			"Love them, have/want pets", "Like them but don't have any", "Neutral", "Prefer no pets", "Allergic"),
		scale(10, "How important is fitness and health to you?", 1.0),
		mc(11, "What's your relationship with social media?", 1.0,
			"Very active", "Moderately active", "Rarely use it", "Don't use it", "It's complicated"),
		scale(12, "How important is work-life balance?", 1.2),
		mc(13, "Where do you see yourself in 5 years?", 1.3,
			"Same city, established career", "Traveling or exploring", "Starting a family", "Pursuing new opportunities", "Living more simply"),
		mc(14, "How do you feel about long-term commitment?", 1.5,
			"Ready and looking for it", "Open to it with the right person", "Not sure yet", "Prefer to take things slow", "Not interested right now"),
		scale(15, "How important is financial stability?", 1.2),
		freeText(16, "What's a hobby or interest you're passionate about?", 1.0),
		mc(17, "How do you prefer to travel?", 1.0,
			"Planned itineraries", "Spontaneous adventures", "Luxury and comfort", "Budget and backpacking", "Don't travel much"),
		mc(18, "What's your ideal social setting?", 1.0,
			"Large groups and parties", "Small intimate gatherings", "One-on-one conversations", "Mix of both", "Prefer solitude"),
		scale(19, "How important is it that your partner has similar values?", 1.5),
		mc(20, "What energizes you most?", 1.0,
			"Social interactions", "Quiet reflection", "Creative projects", "Physical activity", "Learning new things"),
		freeText(21, "What's something you value in yourself that you'd want a partner to appreciate?", 1.2),
		scale(22, "How important is it to share similar life goals?", 1.3),
		mc(23, "How do you express affection?", 1.0,
			"Words of affirmation", "Physical touch", "Quality time", "Acts of service", "Gifts"),
		mc(24, "What's your ideal relationship dynamic?", 1.2,
			"Very close, do everything together", "Independent but connected", "Partners in adventure", "Supportive but separate lives", "Still figuring it out"),
		freeText(25, "What makes you feel most loved and appreciated?", 1.0),
	}
}

// SeedQuestions inserts the catalog once. Existing rows are left untouched.
func SeedQuestions(db *gorm.DB) (int, error) {
	var count int64
	if err := db.Model(&QuestionnaireQuestion{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	questions := DefaultQuestions()
	if err := db.Create(&questions).Error; err != nil {
		return 0, fmt.Errorf("failed to seed questions: %w", err)
	}
	return len(questions), nil
}
