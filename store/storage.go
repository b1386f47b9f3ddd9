package store

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"placement-ai/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an experience id has no approved row.
var ErrNotFound = sql.ErrNoRows

// ExperienceStorer reads canonical experience records. The rows are owned
// by the web backend; this service never writes them.
type ExperienceStorer interface {
	GetExperienceByID(ctx context.Context, id uuid.UUID) (*types.Experience, error)
	GetAllApproved(ctx context.Context) ([]types.Experience, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Pool() *pgxpool.Pool { return p.pool }

func (p *PostgresStore) GetExperienceByID(ctx context.Context, id uuid.UUID) (*types.Experience, error) {
	exp := &types.Experience{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, company_name, role, interview_year, COALESCE(interview_month, 0),
		       COALESCE(offer_status, ''), COALESCE(difficulty_level, 0),
		       COALESCE(overall_experience, ''), COALESCE(preparation_time, ''), COALESCE(tips, '')
		FROM experiences
		WHERE id = $1 AND status = 'approved'`, id).Scan(
		&exp.ID,
		&exp.CompanyName,
		&exp.Role,
		&exp.InterviewYear,
		&exp.InterviewMonth,
		&exp.OfferStatus,
		&exp.DifficultyLevel,
		&exp.Overall,
		&exp.PreparationTime,
		&exp.Tips,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if exp.Rounds, err = p.getRounds(ctx, id); err != nil {
		return nil, err
	}
	if exp.Questions, err = p.getQuestions(ctx, id); err != nil {
		return nil, err
	}
	return exp, nil
}

func (p *PostgresStore) getRounds(ctx context.Context, id uuid.UUID) ([]types.Round, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT round_number, COALESCE(round_type, ''), COALESCE(round_name, ''),
		       COALESCE(duration_minutes, 0), COALESCE(mode, ''),
		       COALESCE(description, ''), COALESCE(difficulty, '')
		FROM interview_rounds
		WHERE experience_id = $1
		ORDER BY round_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []types.Round
	for rows.Next() {
		var r types.Round
		if err := rows.Scan(&r.Number, &r.Type, &r.Name, &r.DurationMin, &r.Mode, &r.Description, &r.Difficulty); err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func (p *PostgresStore) getQuestions(ctx context.Context, id uuid.UUID) ([]types.Question, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT COALESCE(question_text, ''), COALESCE(question_type, ''), COALESCE(topic, ''),
		       COALESCE(subtopic, ''), COALESCE(difficulty, ''), COALESCE(answer_approach, '')
		FROM questions
		WHERE experience_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []types.Question
	for rows.Next() {
		var q types.Question
		if err := rows.Scan(&q.Text, &q.Type, &q.Topic, &q.Subtopic, &q.Difficulty, &q.Approach); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetAllApproved loads every approved experience with rounds and
// questions, the input of a full reindex.
func (p *PostgresStore) GetAllApproved(ctx context.Context) ([]types.Experience, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM experiences
		WHERE status = 'approved'
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	experiences := make([]types.Experience, 0, len(ids))
	for _, id := range ids {
		exp, err := p.GetExperienceByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		experiences = append(experiences, *exp)
	}
	return experiences, nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
