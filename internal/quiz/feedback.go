package quiz

import "time"

// Mark tallies questions by outcome.
type Mark struct {
	Correct      int `json:"correct"`
	Incorrect    int `json:"incorrect"`
	NotAttempted int `json:"not_attempted"`
}

func (m Mark) add(o Mark) Mark {
	return Mark{
		Correct:      m.Correct + o.Correct,
		Incorrect:    m.Incorrect + o.Incorrect,
		NotAttempted: m.NotAttempted + o.NotAttempted,
	}
}

// Feedback is the disclosed part of an attempt. Which fields are set depends
// on the feedback mode.
type Feedback struct {
	Complete      bool            `json:"complete"`
	OverallMark   *Mark           `json:"overall_mark,omitempty"`
	SectionMarks  map[string]Mark `json:"section_marks,omitempty"`
	QuestionMarks map[string]Mark `json:"question_marks,omitempty"`
}

type UserSummary struct {
	ID                   string `json:"id"`
	GivenName            string `json:"given_name,omitempty"`
	FamilyName           string `json:"family_name,omitempty"`
	AuthorisedFullAccess bool   `json:"authorised_full_access"`
}

// UserFeedback pairs a student with their feedback; Feedback is nil when the
// viewer may only know that the student exists.
type UserFeedback struct {
	User     UserSummary `json:"user"`
	Feedback *Feedback   `json:"feedback"`
}

type AssignmentView struct {
	Assignment
	QuizTitle    string         `json:"quiz_title,omitempty"`
	UserFeedback []UserFeedback `json:"user_feedback,omitempty"`
}

type AssignedQuiz struct {
	Assignment
	Attempt *Attempt `json:"attempt,omitempty"`
}

// SavedAnswer is the latest answer given to a question, without its verdict.
type SavedAnswer struct {
	Answer        string    `json:"answer"`
	DateAttempted time.Time `json:"date_attempted"`
}

// ResumedAttempt is an unfinished attempt as its owner reloads it.
type ResumedAttempt struct {
	Attempt    Attempt                `json:"attempt"`
	Assignment *Assignment            `json:"quiz_assignment,omitempty"`
	Quiz       QuizSummary            `json:"quiz"`
	Answers    map[string]SavedAnswer `json:"answers"`
}

type AttemptFeedbackView struct {
	Attempt      Attempt      `json:"attempt"`
	Assignment   *Assignment  `json:"quiz_assignment,omitempty"`
	FeedbackMode FeedbackMode `json:"feedback_mode"`
	UserFeedback
	Answers map[string]QuestionAttempt `json:"answers,omitempty"`
}

// latest picks the authoritative answer per question.
func latest(answers map[string][]QuestionAttempt) map[string]QuestionAttempt {
	out := make(map[string]QuestionAttempt, len(answers))
	for qid, list := range answers {
		if len(list) > 0 {
			out[qid] = list[len(list)-1]
		}
	}
	return out
}

// buildFeedback scores the latest answers against the quiz structure and keeps
// only what mode allows.
func buildFeedback(q Quiz, mode FeedbackMode, complete bool, answers map[string][]QuestionAttempt) *Feedback {
	fb := &Feedback{Complete: complete}
	if !complete || mode == FeedbackNone {
		return fb
	}
	last := latest(answers)
	sections := map[string]Mark{}
	questions := map[string]Mark{}
	var overall Mark
	for _, s := range q.Sections {
		sections[s.ID] = Mark{}
	}
	for _, qq := range q.Questions() {
		var m Mark
		switch ans, ok := last[qq.ID]; {
		case !ok:
			m.NotAttempted = 1
		case ans.Verdict.Correct:
			m.Correct = 1
		default:
			m.Incorrect = 1
		}
		questions[qq.ID] = m
		sections[qq.SectionID] = sections[qq.SectionID].add(m)
		overall = overall.add(m)
	}
	fb.OverallMark = &overall
	switch mode {
	case FeedbackSections:
		fb.SectionMarks = sections
	case FeedbackDetailed:
		fb.SectionMarks = sections
		fb.QuestionMarks = questions
	}
	return fb
}
