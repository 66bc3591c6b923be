package grades

import (
	"context"
	"fmt"

	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, g *models.Grade) error {
	query :=
		`INSERT INTO grades (uid, user_id_hashed, subject, subject_category, teacher, grade_group, theme,
			type, text_grade, short_text_grade, grade_value, weight, evaluation_date, create_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (uid)
		DO UPDATE SET
			subject = EXCLUDED.subject,
			subject_category = EXCLUDED.subject_category,
			teacher = EXCLUDED.teacher,
			grade_group = EXCLUDED.grade_group,
			theme = EXCLUDED.theme,
			type = EXCLUDED.type,
			text_grade = EXCLUDED.text_grade,
			short_text_grade = EXCLUDED.short_text_grade,
			grade_value = EXCLUDED.grade_value,
			weight = EXCLUDED.weight,
			evaluation_date = EXCLUDED.evaluation_date,
			create_date = EXCLUDED.create_date,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		g.UID, g.UserIDHashed, g.Subject, g.SubjectCategory, g.Teacher, g.Group, g.Theme,
		g.Type, g.TextGrade, g.ShortTextGrade, g.GradeValue, g.Weight, g.EvaluationDate, g.CreateDate)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
