package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

// ParseRole maps user input onto a known role. Empty input yields the default STUDENT role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash *string   `db:"password_hash" json:"-"` // nil for OAuth-only accounts
	Name         *string   `db:"name" json:"name,omitempty"`
	Image        *string   `db:"image" json:"image,omitempty"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type OneTimeCode struct {
	Email      string    `db:"email"`
	CodeDigest string    `db:"code_digest"` // HMAC of the numeric code, never the code itself
	ExpiresAt  time.Time `db:"expires_at"`
	Attempts   int       `db:"attempts"`
	CreatedAt  time.Time `db:"created_at"`
}

type DiaryEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Date      time.Time `db:"entry_date" json:"date"`
	Entry     string    `db:"entry" json:"entry"` // Encrypted in DB
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Goal struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"userId"`
	Title     string     `db:"title" json:"title"`
	Target    float64    `db:"target" json:"target"`
	Unit      string     `db:"unit" json:"unit"`
	Progress  float64    `db:"progress" json:"progress"`
	DueDate   *time.Time `db:"due_date" json:"dueDate,omitempty"`
	Completed bool       `db:"completed" json:"completed"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

type Topic struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"-"`
	Title     string     `db:"title" json:"title"`
	Position  int        `db:"position" json:"position"`
	Progress  int        `db:"progress" json:"progress"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	Subtopics []Subtopic `db:"-" json:"subtopics"`
}

type Subtopic struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TopicID   uuid.UUID `db:"topic_id" json:"topicId"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	Completed bool      `db:"completed" json:"completed"`
}

type ProfileMode string

const (
	ModeStudy ProfileMode = "study"
	ModeQuiz  ProfileMode = "quiz"
)

func ParseMode(s string) (ProfileMode, error) {
	switch ProfileMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStudy:
		return ModeStudy, nil
	case ModeQuiz:
		return ModeQuiz, nil
	default:
		return "", fmt.Errorf("unknown chat mode %q", s)
	}
}

// StudyProfile keeps free-form per-mode preferences (goals, level, quiz style...).
type StudyProfile struct {
	UserID    uuid.UUID       `db:"user_id" json:"userId"`
	Mode      ProfileMode     `db:"mode" json:"mode"`
	Data      json.RawMessage `db:"data" json:"data"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextSnippet is a previously stored text retrieved by vector similarity.
type ContextSnippet struct {
	ID       uuid.UUID `db:"id"`
	Content  string    `db:"content"`
	Distance float64   `db:"distance"`
}

// DiaryActivity summarises diary writing up to a reference day.
type DiaryActivity struct {
	HasTodayEntry    bool      `db:"has_today_entry"`
	EntriesThisWeek  int       `db:"entries_this_week"`
	EntriesThisMonth int       `db:"entries_this_month"`
	EntriesThisYear  int       `db:"entries_this_year"`
	CurrentStreak    int       `db:"current_streak"`
	Trend            []DayMark `db:"-"`
}

type DayMark struct {
	Date    time.Time `db:"day"`
	Written bool      `db:"written"`
}

// ClassOverview is the anonymous, all-students activity a teacher can see.
type ClassOverview struct {
	TotalStudents          int `db:"total_students" json:"totalStudents"`
	ActiveStudentsThisWeek int `db:"active_students_this_week" json:"activeStudentsThisWeek"`
	EntriesThisWeek        int `db:"entries_this_week" json:"entriesThisWeek"`
	EntriesThisMonth       int `db:"entries_this_month" json:"entriesThisMonth"`
	GoalsCompleted         int `db:"goals_completed" json:"goalsCompleted"`
}
