package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/database"
	"github.com/aptiva/aptiva-backend/internal/logger"
	"github.com/aptiva/aptiva-backend/internal/model"
	"github.com/aptiva/aptiva-backend/internal/repository"
	"github.com/aptiva/aptiva-backend/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questionRepo := repository.NewQuestionRepository(pool)
	questionService := service.NewQuestionService(questionRepo)

	fmt.Println("=== Seeding Question Bank ===")

	req := &model.ImportQuestionsRequest{}
	req.Questions = append(req.Questions, grammarQuestions()...)
	req.Questions = append(req.Questions, dictationQuestions()...)
	req.Questions = append(req.Questions, codeQuestions()...)

	created, err := questionService.Import(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("\nSeed completed! Added %d questions.\n", len(created))
}

// grammarQuestions builds 20 B1 grammar MCQs from sentence templates.
func grammarQuestions() []model.AddQuestionRequest {
	type mcqSeed struct {
		prompt  string
		options map[string]string
		correct string
	}
	seeds := []mcqSeed{
		{"She ___ to the gym every morning before work.", map[string]string{"A": "go", "B": "goes", "C": "going", "D": "gone"}, "B"},
		{"If I ___ more time, I would learn another language.", map[string]string{"A": "have", "B": "has", "C": "had", "D": "having"}, "C"},
		{"They haven't seen each other ___ 2019.", map[string]string{"A": "for", "B": "since", "C": "from", "D": "during"}, "B"},
		{"By the time we arrived, the film ___ already started.", map[string]string{"A": "has", "B": "have", "C": "was", "D": "had"}, "D"},
		{"You ___ park here; it's a loading zone.", map[string]string{"A": "mustn't", "B": "don't have to", "C": "couldn't", "D": "wouldn't"}, "A"},
		{"The report ___ by the committee next week.", map[string]string{"A": "reviews", "B": "is reviewing", "C": "will be reviewed", "D": "has reviewed"}, "C"},
		{"I'm not used to ___ up this early.", map[string]string{"A": "get", "B": "getting", "C": "got", "D": "have gotten"}, "B"},
		{"She asked me where ___ the keys.", map[string]string{"A": "did I put", "B": "I did put", "C": "I had put", "D": "had I put"}, "C"},
		{"___ the rain, the match went ahead.", map[string]string{"A": "Although", "B": "Despite", "C": "However", "D": "Because"}, "B"},
		{"This is the restaurant ___ we had dinner last year.", map[string]string{"A": "which", "B": "what", "C": "where", "D": "when"}, "C"},
		{"He suggested ___ the meeting to Friday.", map[string]string{"A": "to move", "B": "moving", "C": "move", "D": "moved"}, "B"},
		{"The instructions weren't clear enough ___ follow.", map[string]string{"A": "to", "B": "for", "C": "that", "D": "so"}, "A"},
		{"I'd rather you ___ smoke in the car.", map[string]string{"A": "don't", "B": "won't", "C": "didn't", "D": "not"}, "C"},
		{"Hardly ___ the house when it started to rain.", map[string]string{"A": "we had left", "B": "had we left", "C": "we left", "D": "did we leave"}, "B"},
		{"The museum, ___ was built in 1901, is being renovated.", map[string]string{"A": "that", "B": "what", "C": "which", "D": "whose"}, "C"},
		{"You look tired. You ___ working too hard lately.", map[string]string{"A": "must be", "B": "must have been", "C": "should be", "D": "can't have been"}, "B"},
		{"Neither of the answers ___ correct.", map[string]string{"A": "are", "B": "were", "C": "is", "D": "have been"}, "C"},
		{"She made her son ___ his room before dinner.", map[string]string{"A": "to tidy", "B": "tidy", "C": "tidying", "D": "tidied"}, "B"},
		{"I wish I ___ how to swim when I was younger.", map[string]string{"A": "learned", "B": "would learn", "C": "had learned", "D": "have learned"}, "C"},
		{"The sooner we leave, ___ we'll get there.", map[string]string{"A": "the earlier", "B": "earlier", "C": "more early", "D": "the more earlier"}, "A"},
	}

	topic := "verb-forms"
	out := make([]model.AddQuestionRequest, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, model.AddQuestionRequest{
			ModuleID: "grammar",
			Level:    "B1",
			TopicID:  &topic,
			Kind:     model.QuestionKindMCQ,
			Prompt:   s.prompt,
			MCQ: &model.MCQPayload{
				Options:       s.options,
				CorrectOption: s.correct,
			},
		})
	}
	return out
}

// dictationQuestions builds dictation items referencing pre-generated
// audio assets under the audio base URL.
func dictationQuestions() []model.AddQuestionRequest {
	sentences := []string{
		"The weather forecast predicts heavy rain for the entire weekend.",
		"She bought three tickets for the evening performance.",
		"Our flight was delayed because of a technical problem.",
		"The library closes at nine on weekdays and six on Saturdays.",
		"He promised to call as soon as the meeting finished.",
		"The new bridge connects the two oldest parts of the city.",
		"Please leave your keys at the reception desk before checkout.",
		"The children spent the whole afternoon building a sandcastle.",
		"Nobody expected the concert to sell out within an hour.",
		"The recipe calls for two cups of flour and a pinch of salt.",
	}

	out := make([]model.AddQuestionRequest, 0, len(sentences))
	for i, text := range sentences {
		out = append(out, model.AddQuestionRequest{
			ModuleID: "dictation",
			Level:    "B1",
			Kind:     model.QuestionKindDictation,
			Prompt:   "Listen to the recording and type exactly what you hear.",
			Dictation: &model.DictationPayload{
				AudioRef:      fmt.Sprintf("dictation/b1/%03d.mp3", i+1),
				CanonicalText: text,
			},
		})
	}
	return out
}

// codeQuestions builds a handful of compiler-judge exercises.
func codeQuestions() []model.AddQuestionRequest {
	return []model.AddQuestionRequest{
		{
			ModuleID: "programming",
			Level:    "B1",
			Kind:     model.QuestionKindCode,
			Prompt:   "Read two integers from stdin and print their sum.",
			Code: &model.CodePayload{
				Language: "python",
				TestCases: []model.CodeTestCase{
					{Stdin: "2 3\n", ExpectedOutput: "5\n"},
					{Stdin: "-7 7\n", ExpectedOutput: "0\n"},
					{Stdin: "100 250\n", ExpectedOutput: "350\n"},
				},
			},
		},
		{
			ModuleID: "programming",
			Level:    "B1",
			Kind:     model.QuestionKindCode,
			Prompt:   "Read a line of text and print it reversed.",
			Code: &model.CodePayload{
				Language: "python",
				TestCases: []model.CodeTestCase{
					{Stdin: "hello\n", ExpectedOutput: "olleh\n"},
					{Stdin: "racecar\n", ExpectedOutput: "racecar\n"},
				},
			},
		},
		{
			ModuleID: "programming",
			Level:    "B1",
			Kind:     model.QuestionKindCode,
			Prompt:   "Read an integer n and print the first n Fibonacci numbers separated by spaces.",
			Code: &model.CodePayload{
				Language: "python",
				TestCases: []model.CodeTestCase{
					{Stdin: "1\n", ExpectedOutput: "0\n"},
					{Stdin: "5\n", ExpectedOutput: "0 1 1 2 3\n"},
					{Stdin: "8\n", ExpectedOutput: "0 1 1 2 3 5 8 13\n"},
				},
			},
		},
		{
			ModuleID: "programming",
			Level:    "B1",
			Kind:     model.QuestionKindCode,
			Prompt:   "Read an integer and print \"even\" or \"odd\".",
			Code: &model.CodePayload{
				Language: "python",
				TestCases: []model.CodeTestCase{
					{Stdin: "4\n", ExpectedOutput: "even\n"},
					{Stdin: "9\n", ExpectedOutput: "odd\n"},
				},
			},
		},
		{
			ModuleID: "programming",
			Level:    "B1",
			Kind:     model.QuestionKindCode,
			Prompt:   "Read a list of space-separated integers and print the largest one.",
			Code: &model.CodePayload{
				Language: "python",
				TestCases: []model.CodeTestCase{
					{Stdin: "3 1 4 1 5\n", ExpectedOutput: "5\n"},
					{Stdin: "-2 -8 -1\n", ExpectedOutput: "-1\n"},
				},
			},
		},
	}
}
