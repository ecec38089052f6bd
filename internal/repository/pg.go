package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"studypal/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Repository is everything the services need from persistence.
type Repository interface {
	RunInTx(ctx context.Context, fn func(Repository) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserExists(ctx context.Context, email string) (bool, error)

	UpsertOTP(ctx context.Context, code *models.OneTimeCode) error
	GetOTP(ctx context.Context, email string) (*models.OneTimeCode, error)
	ClaimOTPAttempt(ctx context.Context, email string, maxAttempts int, now time.Time) (*models.OneTimeCode, error)
	DeleteOTP(ctx context.Context, email string) error

	UpsertDiaryEntry(ctx context.Context, e *models.DiaryEntry) (created bool, err error)
	ListDiaryEntries(ctx context.Context, userID uuid.UUID) ([]models.DiaryEntry, error)
	UpdateDiaryEntry(ctx context.Context, userID uuid.UUID, date time.Time, entry string) (*models.DiaryEntry, error)
	DeleteDiaryEntry(ctx context.Context, userID uuid.UUID, date time.Time) error
	DiaryActivity(ctx context.Context, userID uuid.UUID, ref time.Time) (*models.DiaryActivity, error)

	CreateGoal(ctx context.Context, g *models.Goal) error
	ListGoals(ctx context.Context, userID uuid.UUID) ([]models.Goal, error)
	UpdateGoalProgress(ctx context.Context, userID, goalID uuid.UUID, progress float64) (*models.Goal, error)
	DeleteGoal(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error)

	CreateTopic(ctx context.Context, t *models.Topic) error
	ListTopics(ctx context.Context, userID uuid.UUID) ([]models.Topic, error)
	GetTopic(ctx context.Context, userID, topicID uuid.UUID) (*models.Topic, error)
	CompleteSubtopic(ctx context.Context, topicID, subtopicID uuid.UUID) error
	CountSubtopics(ctx context.Context, topicID uuid.UUID) (completed, total int, err error)
	SetTopicProgress(ctx context.Context, topicID uuid.UUID, progress int) error

	UpsertProfile(ctx context.Context, p *models.StudyProfile) error
	GetProfile(ctx context.Context, userID uuid.UUID, mode models.ProfileMode) (*models.StudyProfile, error)

	ClassOverview(ctx context.Context, ref time.Time) (*models.ClassOverview, error)

	SaveEmbedding(ctx context.Context, userID uuid.UUID, content string, embedding []float32) error
	NearestEmbeddings(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]models.ContextSnippet, error)
}

type Postgres struct {
	db   *sqlx.DB
	tx   *sqlx.Tx
	psql squirrel.StatementBuilderType
}

// New wraps an already opened pool. The pool is owned by the caller.
func New(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (r *Postgres) begin(ctx context.Context) (*Postgres, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Postgres{db: r.db, tx: tx, psql: r.psql}, nil
}

// RunInTx runs fn against a transaction-bound repository. Nested calls reuse the outer transaction.
func (r *Postgres) RunInTx(ctx context.Context, fn func(Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	txRepo, err := r.begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = txRepo.tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(txRepo); err != nil {
		_ = txRepo.tx.Rollback()
		return err
	}
	if err = txRepo.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Postgres) executor() sqlx.ExtContext {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *Postgres) get(ctx context.Context, dest any, b squirrel.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query: %w", err)
	}
	return translate(sqlx.GetContext(ctx, r.executor(), dest, query, args...))
}

func (r *Postgres) selectAll(ctx context.Context, dest any, b squirrel.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query: %w", err)
	}
	return translate(sqlx.SelectContext(ctx, r.executor(), dest, query, args...))
}

func (r *Postgres) exec(ctx context.Context, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SQL query: %w", err)
	}
	res, err := r.executor().ExecContext(ctx, query, args...)
	return res, translate(err)
}

// execOne reports ErrNotFound when the statement touched no rows.
func (r *Postgres) execOne(ctx context.Context, b squirrel.Sqlizer) error {
	res, err := r.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
