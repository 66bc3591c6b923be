// Package imports receives grade collections that an external importer has
// encrypted to a user's public key, and applies them once that user's master
// key is available.
package imports

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/server/models"
)

// Collection is the decrypted payload the external importer produces.
type Collection struct {
	StudentName string  `json:"studentName"`
	SchoolClass string  `json:"schoolClass"`
	Grades      []Grade `json:"grades"`
}

type Grade struct {
	UID             string    `json:"uid"`
	Subject         string    `json:"subject"`
	SubjectCategory string    `json:"subjectCategory"`
	Teacher         string    `json:"teacher"`
	Group           string    `json:"group"`
	Theme           string    `json:"theme"`
	Type            string    `json:"type"`
	TextGrade       string    `json:"textGrade"`
	ShortTextGrade  string    `json:"shortTextGrade"`
	Value           int       `json:"grade"`
	Weight          int       `json:"weight"`
	EvaluationDate  time.Time `json:"evaluationDate"`
	CreateDate      time.Time `json:"createDate"`
}

var errMissingUID = errors.New("grade without uid")

// ParseCollection decodes and sanity checks a decrypted payload.
func ParseCollection(data []byte) (*Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	for i, g := range c.Grades {
		if g.UID == "" {
			return nil, fmt.Errorf("grade %d: %w", i, errMissingUID)
		}
	}
	return &c, nil
}

// Transform turns the collection into grade rows. userIDHashed is the user id
// hashed with the user's hasher salt; it doubles as the salt of every row
// UID, so the same source grade always lands on the same row for that user
// and on different rows for different users.
func (c *Collection) Transform(userIDHashed string) []*models.Grade {
	out := make([]*models.Grade, 0, len(c.Grades))
	for _, g := range c.Grades {
		out = append(out, &models.Grade{
			UID:             cryptox.HashWithSalt(g.UID, userIDHashed),
			UserIDHashed:    userIDHashed,
			Subject:         g.Subject,
			SubjectCategory: g.SubjectCategory,
			Teacher:         g.Teacher,
			Group:           g.Group,
			Theme:           g.Theme,
			Type:            g.Type,
			TextGrade:       g.TextGrade,
			ShortTextGrade:  g.ShortTextGrade,
			GradeValue:      g.Value,
			Weight:          g.Weight,
			EvaluationDate:  g.EvaluationDate,
			CreateDate:      g.CreateDate,
		})
	}
	return out
}
