package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"studypal/internal/models"
)

// CreateTopic inserts the topic and its subtopics. Callers wanting atomicity wrap it in RunInTx.
func (r *Postgres) CreateTopic(ctx context.Context, t *models.Topic) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	q := r.psql.Insert("topics").
		Columns("id", "user_id", "title", "position", "progress").
		Values(t.ID, t.UserID, t.Title, t.Position, t.Progress).
		Suffix("RETURNING created_at")
	if err := r.get(ctx, &t.CreatedAt, q); err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	if len(t.Subtopics) == 0 {
		return nil
	}

	ins := r.psql.Insert("subtopics").Columns("id", "topic_id", "title", "position", "completed")
	for i := range t.Subtopics {
		st := &t.Subtopics[i]
		if st.ID == uuid.Nil {
			st.ID = uuid.New()
		}
		st.TopicID = t.ID
		ins = ins.Values(st.ID, st.TopicID, st.Title, st.Position, st.Completed)
	}
	if _, err := r.exec(ctx, ins); err != nil {
		return fmt.Errorf("create subtopics (topic: %s): %w", t.ID, err)
	}
	return nil
}

// ListTopics returns the user's topics in path order, each with its subtopics attached.
func (r *Postgres) ListTopics(ctx context.Context, userID uuid.UUID) ([]models.Topic, error) {
	topics := []models.Topic{}
	q := r.psql.Select("id", "user_id", "title", "position", "progress", "created_at").
		From("topics").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("position", "created_at")
	if err := r.selectAll(ctx, &topics, q); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	if len(topics) == 0 {
		return topics, nil
	}

	ids := make([]uuid.UUID, len(topics))
	index := make(map[uuid.UUID]int, len(topics))
	for i, t := range topics {
		ids[i] = t.ID
		index[t.ID] = i
		topics[i].Subtopics = []models.Subtopic{}
	}

	var subs []models.Subtopic
	sq := r.psql.Select("id", "topic_id", "title", "position", "completed").
		From("subtopics").
		Where(squirrel.Eq{"topic_id": ids}).
		OrderBy("position")
	if err := r.selectAll(ctx, &subs, sq); err != nil {
		return nil, fmt.Errorf("list subtopics: %w", err)
	}
	for _, s := range subs {
		if i, ok := index[s.TopicID]; ok {
			topics[i].Subtopics = append(topics[i].Subtopics, s)
		}
	}
	return topics, nil
}

func (r *Postgres) GetTopic(ctx context.Context, userID, topicID uuid.UUID) (*models.Topic, error) {
	var t models.Topic
	q := r.psql.Select("id", "user_id", "title", "position", "progress", "created_at").
		From("topics").
		Where(squirrel.Eq{"id": topicID, "user_id": userID})
	if err := r.get(ctx, &t, q); err != nil {
		return nil, fmt.Errorf("get topic (id: %s): %w", topicID, err)
	}
	return &t, nil
}

func (r *Postgres) CompleteSubtopic(ctx context.Context, topicID, subtopicID uuid.UUID) error {
	q := r.psql.Update("subtopics").
		Set("completed", true).
		Where(squirrel.Eq{"id": subtopicID, "topic_id": topicID})
	if err := r.execOne(ctx, q); err != nil {
		return fmt.Errorf("complete subtopic (id: %s): %w", subtopicID, err)
	}
	return nil
}

func (r *Postgres) CountSubtopics(ctx context.Context, topicID uuid.UUID) (int, int, error) {
	var row struct {
		Completed int `db:"completed"`
		Total     int `db:"total"`
	}
	q := r.psql.Select("COUNT(*) FILTER (WHERE completed) AS completed", "COUNT(*) AS total").
		From("subtopics").
		Where(squirrel.Eq{"topic_id": topicID})
	if err := r.get(ctx, &row, q); err != nil {
		return 0, 0, fmt.Errorf("count subtopics (topic: %s): %w", topicID, err)
	}
	return row.Completed, row.Total, nil
}

func (r *Postgres) SetTopicProgress(ctx context.Context, topicID uuid.UUID, progress int) error {
	q := r.psql.Update("topics").Set("progress", progress).Where(squirrel.Eq{"id": topicID})
	if err := r.execOne(ctx, q); err != nil {
		return fmt.Errorf("set topic progress (id: %s): %w", topicID, err)
	}
	return nil
}
