package service

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"vigia_backend/internal/model"
	"vigia_backend/internal/util"
)

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionName  string      `json:"questionName"`
	QuestionType  string      `json:"questionType"`
	UserAnswer    interface{} `json:"userAnswer"`
	CorrectAnswer interface{} `json:"correctAnswer"`
	IsCorrect     bool        `json:"isCorrect"`
	PointsEarned  float64     `json:"pointsEarned"`
	PointsTotal   float64     `json:"pointsTotal"`
	Feedback      string      `json:"feedback,omitempty"`
}

// QuizScore is the result of grading a response. Score is Percentage rounded
// to two decimals.
type QuizScore struct {
	Score           float64          `json:"score"`
	Percentage      float64          `json:"percentage"`
	TotalPoints     float64          `json:"totalPoints"`
	ObtainedPoints  float64          `json:"obtainedPoints"`
	QuestionResults []QuestionResult `json:"questionResults"`
}

// ScoreQuiz grades responses (answers keyed by question name) against def.
// It never fails: a malformed definition scores zero with no results.
// Pass/fail is left to the caller.
func ScoreQuiz(def model.QuizDefinition, responses map[string]interface{}) QuizScore {
	result := QuizScore{QuestionResults: []QuestionResult{}}
	if def.Malformed {
		return result
	}

	for _, q := range def.Fields {
		pointsTotal := q.Points
		if def.Weighted() {
			// an absent or negative weight counts as 1; an explicit 0 drops the question
			weight := 1.0
			if q.Weight != nil && *q.Weight >= 0 {
				weight = *q.Weight
			}
			pointsTotal = q.Points * weight
		}
		result.TotalPoints += pointsTotal

		answer := responses[q.Name]
		correct := answerIsCorrect(q.Type, answer, q.CorrectAnswer)

		earned := 0.0
		if correct {
			earned = pointsTotal
		}
		result.ObtainedPoints += earned

		result.QuestionResults = append(result.QuestionResults, QuestionResult{
			QuestionName:  q.Name,
			QuestionType:  q.Type,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
			PointsEarned:  earned,
			PointsTotal:   pointsTotal,
			Feedback:      resolveFeedback(q, answer, correct),
		})
	}

	if result.TotalPoints > 0 {
		result.Percentage = 100 * result.ObtainedPoints / result.TotalPoints
	}
	result.Score = util.Round2(result.Percentage)
	return result
}

func answerIsCorrect(questionType string, answer, correct interface{}) bool {
	if answer == nil || correct == nil {
		return false
	}
	switch questionType {
	case model.QuestionMultiselect:
		return sameElements(answer, correct)
	case model.QuestionSelect, model.QuestionText, model.QuestionNumber, model.QuestionBoolean:
		return strictEqual(answer, correct)
	default:
		return reflect.DeepEqual(normalize(answer), normalize(correct))
	}
}

// strictEqual compares two scalars by JSON type and value; "1" never equals 1.
func strictEqual(a, b interface{}) bool {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// sameElements reports whether both values are lists of equal length holding
// the same elements in any order.
func sameElements(a, b interface{}) bool {
	al, ok := normalize(a).([]interface{})
	if !ok {
		return false
	}
	bl, ok := normalize(b).([]interface{})
	if !ok || len(al) != len(bl) {
		return false
	}
	ak, bk := elementKeys(al), elementKeys(bl)
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}
	return true
}

func elementKeys(list []interface{}) []string {
	keys := make([]string, len(list))
	for i, v := range list {
		b, _ := json.Marshal(v)
		keys[i] = string(b)
	}
	sort.Strings(keys)
	return keys
}

// normalize maps Go-native values onto the shapes encoding/json produces, so
// answers built in code compare like decoded request payloads.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

func resolveFeedback(q model.QuizQuestion, answer interface{}, correct bool) string {
	var parts []string
	switch q.Type {
	case model.QuestionSelect:
		if opt := findOption(q.Options, answer); opt != nil && opt.Feedback != "" {
			parts = append(parts, opt.Feedback)
		}
	case model.QuestionMultiselect:
		if selected, ok := normalize(answer).([]interface{}); ok {
			for _, v := range selected {
				if opt := findOption(q.Options, v); opt != nil && opt.Feedback != "" {
					parts = append(parts, opt.Feedback)
				}
			}
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}
	if q.Feedback == nil {
		return ""
	}
	if correct {
		return q.Feedback.Correct
	}
	return q.Feedback.Incorrect
}

func findOption(options []model.QuizOption, value interface{}) *model.QuizOption {
	if value == nil {
		return nil
	}
	for i := range options {
		if strictEqual(options[i].Value, value) {
			return &options[i]
		}
	}
	return nil
}
