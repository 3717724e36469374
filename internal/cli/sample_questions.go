package cli

import "battle-room-service/internal/domain"

// sampleQuestions backs the in-memory loader when no database is configured.
func sampleQuestions() map[string][]domain.Question {
	general := []domain.Question{
		{Prompt: "What is the capital of France?", Answer: "Paris", Explanation: "Paris has been the capital since 987.", Points: 1},
		{Prompt: "How many continents are there?", Answer: "7", Points: 1},
		{Prompt: "What is the chemical symbol for gold?", Answer: "Au", Explanation: "From the Latin aurum.", Points: 1},
		{Prompt: "Which planet is known as the Red Planet?", Answer: "Mars", Points: 1},
		{Prompt: "What is 12 × 12?", Answer: "144", Points: 1},
		{Prompt: "Who wrote Hamlet?", Answer: "William Shakespeare", Points: 2},
		{Prompt: "What is the largest ocean on Earth?", Answer: "Pacific", Points: 1},
		{Prompt: "How many sides does a hexagon have?", Answer: "6", Points: 1},
		{Prompt: "What gas do plants absorb from the air?", Answer: "Carbon dioxide", Points: 2},
		{Prompt: "In which year did the Berlin Wall fall?", Answer: "1989", Points: 2},
	}
	return map[string][]domain.Question{
		"":        general,
		"general": general,
	}
}
