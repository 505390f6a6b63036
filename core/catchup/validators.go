package catchup

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo/attendance/core"
)

var (
	uniqueIDsTag  = "uniqueids"
	uniqueIDsText = "ids must be unique"

	withinDurationTag  = "withinduration"
	withinDurationText = "prompts must be scheduled within the lesson duration"
)

// InitValidators registers the catch-up validations. core.InitValidators must have been called on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(tokenStructValidation, PlaybackToken{})
	core.RegisterCustomTranslation(validate, translator, uniqueIDsTag, uniqueIDsText)
	core.RegisterCustomTranslation(validate, translator, withinDurationTag, withinDurationText)
}

// ValidateToken rejects a token that cannot back a Session: missing duration, malformed prompts or quiz.
func ValidateToken(token PlaybackToken, validate *validator.Validate, translator ut.Translator) error {
	if err := validate.Struct(token); err != nil {
		return core.TranslateValidationErrors(err, translator, ErrInvalidToken)
	}
	return nil
}

// validateAnswers checks that every answer targets a known question once, with an existing option.
func validateAnswers(quiz *Quiz, answers []QuizAnswer) error {
	if quiz == nil {
		return core.NewValidationError(ErrInvalidQuizAnswer, core.FieldError{Field: "answers", Error: "lesson has no quiz"})
	}
	options := make(map[string]int, len(quiz.Questions))
	for _, q := range quiz.Questions {
		options[q.ID] = len(q.Options)
	}
	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		n, ok := options[a.QuestionID]
		switch {
		case !ok:
			return core.NewValidationError(ErrInvalidQuizAnswer, core.FieldError{Field: "answers", Error: "unknown question " + a.QuestionID})
		case seen[a.QuestionID]:
			return core.NewValidationError(ErrInvalidQuizAnswer, core.FieldError{Field: "answers", Error: "question answered twice: " + a.QuestionID})
		case a.Option < 0 || a.Option >= n:
			return core.NewValidationError(ErrInvalidQuizAnswer, core.FieldError{Field: "answers", Error: "option out of range for " + a.QuestionID})
		}
		seen[a.QuestionID] = true
	}
	return nil
}

// Custom Validators

// tokenStructValidation does PlaybackToken's struct level validation:
// - prompt ids are unique
// - prompts fire within the lesson duration
// - quiz question ids are unique
func tokenStructValidation(sl validator.StructLevel) {
	token, ok := sl.Current().Interface().(PlaybackToken)
	if !ok {
		return
	}

	promptIDs := make(map[string]bool, len(token.Prompts))
	for _, p := range token.Prompts {
		if promptIDs[p.ID] {
			sl.ReportError(token.Prompts, "prompts", "Prompts", uniqueIDsTag, "")
			break
		}
		promptIDs[p.ID] = true
	}
	if token.DurationSec > 0 {
		for _, p := range token.Prompts {
			if p.AtSec > token.DurationSec {
				sl.ReportError(token.Prompts, "prompts", "Prompts", withinDurationTag, "")
				break
			}
		}
	}

	if token.Quiz != nil {
		questionIDs := make(map[string]bool, len(token.Quiz.Questions))
		for _, q := range token.Quiz.Questions {
			if questionIDs[q.ID] {
				sl.ReportError(token.Quiz.Questions, "quiz", "Quiz", uniqueIDsTag, "")
				break
			}
			questionIDs[q.ID] = true
		}
	}
}
