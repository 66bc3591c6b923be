package models

import "time"

// Grade is one imported line item. UID is salted per user so re-imports
// upsert instead of duplicating, and UserIDHashed keeps grades unlinkable to
// the user row without the user's hasher salt.
type Grade struct {
	UID             string
	UserIDHashed    string
	Subject         string
	SubjectCategory string
	Teacher         string
	Group           string
	Theme           string
	Type            string
	TextGrade       string
	ShortTextGrade  string
	GradeValue      int
	Weight          int
	EvaluationDate  time.Time
	CreateDate      time.Time
}
