package scorm

import (
	"math"
	"strconv"
	"strings"

	"github.com/edustack/go-access-server/internal/utils"
)

// Per-field path precedence. The order is not uniform across fields: the
// 1.2 path is consulted first where both generations define the field,
// while fields that only exist in 2004 read the modern path alone. Do not
// unify without an owner decision.
var (
	scoreRawPaths        = []string{"cmi.core.score.raw", "cmi.score.raw"}
	scoreMinPaths        = []string{"cmi.core.score.min", "cmi.score.min"}
	scoreMaxPaths        = []string{"cmi.core.score.max", "cmi.score.max"}
	lastLocationPaths    = []string{"cmi.core.lesson_location", "cmi.location"}
	totalTimePaths       = []string{"cmi.core.total_time", "cmi.total_time"}
	sessionTimePaths     = []string{"cmi.core.session_time", "cmi.session_time"}
	lessonStatusPath     = "cmi.core.lesson_status"
	completionStatusPath = "cmi.completion_status"
	successStatusPath    = "cmi.success_status"
	progressMeasurePath  = "cmi.progress_measure"
)

// ProgressSummary is the normalized view of a runtime state. Every field
// is independently nullable; a missing or garbled source field nulls only
// that field.
type ProgressSummary struct {
	CompletionStatus   *string  `json:"completionStatus"`
	SuccessStatus      *string  `json:"successStatus"`
	ScoreRaw           *float64 `json:"scoreRaw"`
	ScoreMin           *float64 `json:"scoreMin"`
	ScoreMax           *float64 `json:"scoreMax"`
	ProgressMeasure    *float64 `json:"progressMeasure"`
	TotalTimeSeconds   *float64 `json:"totalTimeSeconds"`
	SessionTimeSeconds *float64 `json:"sessionTimeSeconds"`
	LastLocation       *string  `json:"lastLocation"`
}

// Interpret derives a ProgressSummary from a runtime state. It is a pure
// function: no external state, no errors; partial input yields a partial
// summary.
func Interpret(state RuntimeState) ProgressSummary {
	lessonStatus, hasLessonStatus := firstString(state, lessonStatusPath)

	summary := ProgressSummary{
		ScoreRaw:           firstNumber(state, scoreRawPaths...),
		ScoreMin:           firstNumber(state, scoreMinPaths...),
		ScoreMax:           firstNumber(state, scoreMaxPaths...),
		ProgressMeasure:    firstNumber(state, progressMeasurePath),
		TotalTimeSeconds:   firstDuration(state, totalTimePaths...),
		SessionTimeSeconds: firstDuration(state, sessionTimePaths...),
	}

	if loc, ok := firstString(state, lastLocationPaths...); ok {
		summary.LastLocation = utils.Ptr(loc)
	}

	if explicit, ok := firstString(state, completionStatusPath); ok {
		summary.CompletionStatus = utils.Ptr(explicit)
	} else if hasLessonStatus {
		summary.CompletionStatus = utils.Ptr(completionFromLessonStatus(lessonStatus))
	}

	if explicit, ok := firstString(state, successStatusPath); ok {
		summary.SuccessStatus = utils.Ptr(explicit)
	} else if hasLessonStatus {
		summary.SuccessStatus = successFromLessonStatus(lessonStatus)
	}

	return summary
}

// IsCompletionMet reports whether the statuses describe a concluded
// attempt. A graded pass or fail implies the attempt concluded even when
// the completion status is absent.
func IsCompletionMet(completionStatus, successStatus *string) bool {
	switch normalizeStatus(completionStatus) {
	case "completed", "complete":
		return true
	}
	switch normalizeStatus(successStatus) {
	case "passed", "failed":
		return true
	}
	return false
}

// completionFromLessonStatus maps the 1.2 lesson_status vocabulary onto
// the 2004 completion vocabulary. Unknown values pass through unchanged.
func completionFromLessonStatus(lessonStatus string) string {
	switch normalized := strings.ToLower(strings.TrimSpace(lessonStatus)); normalized {
	case "passed", "failed", "completed":
		return "completed"
	case "incomplete", "browsed", "not attempted":
		return "incomplete"
	default:
		return lessonStatus
	}
}

func successFromLessonStatus(lessonStatus string) *string {
	switch strings.ToLower(strings.TrimSpace(lessonStatus)) {
	case "passed":
		return utils.Ptr("passed")
	case "failed":
		return utils.Ptr("failed")
	default:
		return nil
	}
}

func normalizeStatus(status *string) string {
	return strings.ToLower(strings.TrimSpace(utils.Value(status)))
}

// firstString returns the first present, non-empty string value among
// paths. Number-valued fields do not satisfy a string lookup.
func firstString(state RuntimeState, paths ...string) (string, bool) {
	for _, path := range paths {
		v, ok := state.Get(path)
		if !ok || v.IsNum {
			continue
		}
		if v.Str != "" {
			return v.Str, true
		}
	}
	return "", false
}

// firstNumber returns the first value among paths that parses to a finite
// number, accepting native numbers and numeric strings.
func firstNumber(state RuntimeState, paths ...string) *float64 {
	for _, path := range paths {
		v, ok := state.Get(path)
		if !ok {
			continue
		}
		if n := numberValue(v); n != nil {
			return n
		}
	}
	return nil
}

func numberValue(v Scalar) *float64 {
	if v.IsNum {
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil
		}
		return utils.Ptr(v.Num)
	}
	trimmed := strings.TrimSpace(v.Str)
	if trimmed == "" {
		return nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return utils.Ptr(f)
}

// firstDuration returns the first value among paths that parses under
// either duration grammar. Non-string values never parse.
func firstDuration(state RuntimeState, paths ...string) *float64 {
	for _, path := range paths {
		v, ok := state.Get(path)
		if !ok || v.IsNum {
			continue
		}
		if secs := ParseDuration(v.Str); secs != nil {
			return secs
		}
	}
	return nil
}
