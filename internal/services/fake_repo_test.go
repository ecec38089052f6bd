package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studypal/internal/models"
	"studypal/internal/repository"
)

type diaryKey struct {
	user uuid.UUID
	day  string
}

type storedEmbedding struct {
	userID  uuid.UUID
	content string
	vec     []float32
}

// fakeRepo is an in-memory repository. RunInTx restores the previous state when fn fails.
type fakeRepo struct {
	mu sync.Mutex

	users      map[string]models.User
	otps       map[string]models.OneTimeCode
	diary      map[diaryKey]models.DiaryEntry
	goals      map[uuid.UUID]models.Goal
	topics     []models.Topic
	profiles   map[string]models.StudyProfile
	embeddings []storedEmbedding
	nearest    []models.ContextSnippet

	// fail makes the named method return the error.
	fail map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    map[string]models.User{},
		otps:     map[string]models.OneTimeCode{},
		diary:    map[diaryKey]models.DiaryEntry{},
		goals:    map[uuid.UUID]models.Goal{},
		profiles: map[string]models.StudyProfile{},
		fail:     map[string]error{},
	}
}

var _ repository.Repository = (*fakeRepo)(nil)

func (f *fakeRepo) failure(op string) error {
	return f.fail[op]
}

type fakeSnapshot struct {
	users      map[string]models.User
	otps       map[string]models.OneTimeCode
	diary      map[diaryKey]models.DiaryEntry
	goals      map[uuid.UUID]models.Goal
	topics     []models.Topic
	profiles   map[string]models.StudyProfile
	embeddings []storedEmbedding
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTopics(in []models.Topic) []models.Topic {
	out := make([]models.Topic, len(in))
	for i, t := range in {
		t.Subtopics = append([]models.Subtopic(nil), t.Subtopics...)
		out[i] = t
	}
	return out
}

func (f *fakeRepo) snapshot() fakeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeSnapshot{
		users:      copyMap(f.users),
		otps:       copyMap(f.otps),
		diary:      copyMap(f.diary),
		goals:      copyMap(f.goals),
		topics:     copyTopics(f.topics),
		profiles:   copyMap(f.profiles),
		embeddings: append([]storedEmbedding(nil), f.embeddings...),
	}
}

func (f *fakeRepo) restore(s fakeSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users, f.otps, f.diary, f.goals = s.users, s.otps, s.diary, s.goals
	f.topics, f.profiles, f.embeddings = s.topics, s.profiles, s.embeddings
}

func (f *fakeRepo) RunInTx(_ context.Context, fn func(repository.Repository) error) error {
	if err := f.failure("RunInTx"); err != nil {
		return err
	}
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeRepo) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// --- users ---

func (f *fakeRepo) CreateUser(_ context.Context, u *models.User) error {
	if err := f.failure("CreateUser"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.Email]; ok {
		return repository.ErrDuplicate
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	f.users[u.Email] = *u
	return nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	if err := f.failure("GetUserByEmail"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) UserExists(_ context.Context, email string) (bool, error) {
	if err := f.failure("UserExists"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[email]
	return ok, nil
}

// --- otp ---

func (f *fakeRepo) UpsertOTP(_ context.Context, code *models.OneTimeCode) error {
	if err := f.failure("UpsertOTP"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *code
	c.Attempts = 0
	c.CreatedAt = time.Now()
	f.otps[c.Email] = c
	return nil
}

func (f *fakeRepo) GetOTP(_ context.Context, email string) (*models.OneTimeCode, error) {
	if err := f.failure("GetOTP"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.otps[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (f *fakeRepo) ClaimOTPAttempt(_ context.Context, email string, maxAttempts int, now time.Time) (*models.OneTimeCode, error) {
	if err := f.failure("ClaimOTPAttempt"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.otps[email]
	if !ok || c.Attempts >= maxAttempts || now.After(c.ExpiresAt) {
		return nil, repository.ErrNotFound
	}
	c.Attempts++
	f.otps[email] = c
	return &c, nil
}

func (f *fakeRepo) DeleteOTP(_ context.Context, email string) error {
	if err := f.failure("DeleteOTP"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.otps, email)
	return nil
}

// --- diary ---

func (f *fakeRepo) UpsertDiaryEntry(_ context.Context, e *models.DiaryEntry) (bool, error) {
	if err := f.failure("UpsertDiaryEntry"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := diaryKey{e.UserID, e.Date.Format(dateLayout)}
	now := time.Now()
	if old, ok := f.diary[k]; ok {
		old.Entry = e.Entry
		old.UpdatedAt = now
		f.diary[k] = old
		e.ID, e.CreatedAt, e.UpdatedAt = old.ID, old.CreatedAt, now
		return false, nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt, e.UpdatedAt = now, now
	f.diary[k] = *e
	return true, nil
}

func (f *fakeRepo) ListDiaryEntries(_ context.Context, userID uuid.UUID) ([]models.DiaryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.DiaryEntry{}
	for k, e := range f.diary {
		if k.user == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (f *fakeRepo) UpdateDiaryEntry(_ context.Context, userID uuid.UUID, date time.Time, entry string) (*models.DiaryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := diaryKey{userID, date.Format(dateLayout)}
	e, ok := f.diary[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.Entry = entry
	e.UpdatedAt = time.Now()
	f.diary[k] = e
	return &e, nil
}

func (f *fakeRepo) DeleteDiaryEntry(_ context.Context, userID uuid.UUID, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := diaryKey{userID, date.Format(dateLayout)}
	if _, ok := f.diary[k]; !ok {
		return repository.ErrNotFound
	}
	delete(f.diary, k)
	return nil
}

func (f *fakeRepo) DiaryActivity(_ context.Context, userID uuid.UUID, ref time.Time) (*models.DiaryActivity, error) {
	if err := f.failure("DiaryActivity"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	written := func(d time.Time) bool {
		_, ok := f.diary[diaryKey{userID, d.Format(dateLayout)}]
		return ok
	}
	a := &models.DiaryActivity{HasTodayEntry: written(ref), Trend: []models.DayMark{}}
	weekday := (int(ref.Weekday()) + 6) % 7
	weekStart := ref.AddDate(0, 0, -weekday)
	for k, e := range f.diary {
		if k.user != userID || e.Date.After(ref) {
			continue
		}
		if !e.Date.Before(weekStart) {
			a.EntriesThisWeek++
		}
		if e.Date.Year() == ref.Year() {
			a.EntriesThisYear++
			if e.Date.Month() == ref.Month() {
				a.EntriesThisMonth++
			}
		}
	}
	for d := ref; written(d); d = d.AddDate(0, 0, -1) {
		a.CurrentStreak++
	}
	for i := 6; i >= 0; i-- {
		d := ref.AddDate(0, 0, -i)
		a.Trend = append(a.Trend, models.DayMark{Date: d, Written: written(d)})
	}
	return a, nil
}

func (f *fakeRepo) ClassOverview(_ context.Context, ref time.Time) (*models.ClassOverview, error) {
	if err := f.failure("ClassOverview"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &models.ClassOverview{}
	students := map[uuid.UUID]bool{}
	for _, u := range f.users {
		if u.Role == models.RoleStudent {
			out.TotalStudents++
			students[u.ID] = true
		}
	}
	weekStart := ref.AddDate(0, 0, -((int(ref.Weekday()) + 6) % 7))
	active := map[uuid.UUID]bool{}
	for k, e := range f.diary {
		if e.Date.After(ref) {
			continue
		}
		if !e.Date.Before(weekStart) {
			out.EntriesThisWeek++
			if students[k.user] {
				active[k.user] = true
			}
		}
		if e.Date.Year() == ref.Year() && e.Date.Month() == ref.Month() {
			out.EntriesThisMonth++
		}
	}
	out.ActiveStudentsThisWeek = len(active)
	for _, g := range f.goals {
		if g.Completed {
			out.GoalsCompleted++
		}
	}
	return out, nil
}

// --- goals ---

func (f *fakeRepo) CreateGoal(_ context.Context, g *models.Goal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt, g.UpdatedAt = time.Now(), time.Now()
	f.goals[g.ID] = *g
	return nil
}

func (f *fakeRepo) ListGoals(_ context.Context, userID uuid.UUID) ([]models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Goal{}
	for _, g := range f.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) UpdateGoalProgress(_ context.Context, userID, goalID uuid.UUID, progress float64) (*models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[goalID]
	if !ok || g.UserID != userID {
		return nil, repository.ErrNotFound
	}
	g.Progress = progress
	g.Completed = g.Target > 0 && progress >= g.Target
	g.UpdatedAt = time.Now()
	f.goals[goalID] = g
	return &g, nil
}

func (f *fakeRepo) DeleteGoal(_ context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[goalID]
	if !ok || g.UserID != userID {
		return nil, repository.ErrNotFound
	}
	delete(f.goals, goalID)
	return &g, nil
}

// --- study path ---

func (f *fakeRepo) CreateTopic(_ context.Context, t *models.Topic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for i := range t.Subtopics {
		if t.Subtopics[i].ID == uuid.Nil {
			t.Subtopics[i].ID = uuid.New()
		}
		t.Subtopics[i].TopicID = t.ID
	}
	t.CreatedAt = time.Now()
	f.topics = append(f.topics, copyTopics([]models.Topic{*t})...)
	return nil
}

func (f *fakeRepo) ListTopics(_ context.Context, userID uuid.UUID) ([]models.Topic, error) {
	if err := f.failure("ListTopics"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Topic{}
	for _, t := range copyTopics(f.topics) {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeRepo) topicIndex(topicID uuid.UUID) int {
	for i, t := range f.topics {
		if t.ID == topicID {
			return i
		}
	}
	return -1
}

func (f *fakeRepo) GetTopic(_ context.Context, userID, topicID uuid.UUID) (*models.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.topicIndex(topicID)
	if i < 0 || f.topics[i].UserID != userID {
		return nil, repository.ErrNotFound
	}
	t := copyTopics(f.topics[i : i+1])[0]
	return &t, nil
}

func (f *fakeRepo) CompleteSubtopic(_ context.Context, topicID, subtopicID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.topicIndex(topicID)
	if i < 0 {
		return repository.ErrNotFound
	}
	for j := range f.topics[i].Subtopics {
		if f.topics[i].Subtopics[j].ID == subtopicID {
			f.topics[i].Subtopics[j].Completed = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeRepo) CountSubtopics(_ context.Context, topicID uuid.UUID) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.topicIndex(topicID)
	if i < 0 {
		return 0, 0, nil
	}
	done := 0
	for _, st := range f.topics[i].Subtopics {
		if st.Completed {
			done++
		}
	}
	return done, len(f.topics[i].Subtopics), nil
}

func (f *fakeRepo) SetTopicProgress(_ context.Context, topicID uuid.UUID, progress int) error {
	if err := f.failure("SetTopicProgress"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.topicIndex(topicID)
	if i < 0 {
		return repository.ErrNotFound
	}
	f.topics[i].Progress = progress
	return nil
}

// --- profiles ---

func profileKey(userID uuid.UUID, mode models.ProfileMode) string {
	return userID.String() + "/" + string(mode)
}

func (f *fakeRepo) UpsertProfile(_ context.Context, p *models.StudyProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.UpdatedAt = time.Now()
	f.profiles[profileKey(p.UserID, p.Mode)] = *p
	return nil
}

func (f *fakeRepo) GetProfile(_ context.Context, userID uuid.UUID, mode models.ProfileMode) (*models.StudyProfile, error) {
	if err := f.failure("GetProfile"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[profileKey(userID, mode)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Data = append(json.RawMessage(nil), p.Data...)
	return &p, nil
}

// --- embeddings ---

func (f *fakeRepo) SaveEmbedding(_ context.Context, userID uuid.UUID, content string, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings = append(f.embeddings, storedEmbedding{userID: userID, content: content, vec: vec})
	return nil
}

func (f *fakeRepo) NearestEmbeddings(_ context.Context, _ uuid.UUID, _ []float32, limit int) ([]models.ContextSnippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.nearest
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
