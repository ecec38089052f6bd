package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studypal/internal/genai"
	"studypal/internal/models"
)

type fakeModel struct {
	mu       sync.Mutex
	requests []genai.GenerateRequest
	reply    string
	genErr   error
	embedErr error
	chunks   []string
}

func (m *fakeModel) Generate(_ context.Context, req genai.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.reply, m.genErr
}

func (m *fakeModel) Stream(_ context.Context, req genai.GenerateRequest, onDelta func(string) error) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.genErr != nil {
		return "", m.genErr
	}
	full := ""
	for _, c := range m.chunks {
		if err := onDelta(c); err != nil {
			return full, err
		}
		full += c
	}
	return full, nil
}

func (m *fakeModel) Embed(context.Context, string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func conversation() []models.ChatMessage {
	return []models.ChatMessage{
		{Role: "user", Content: "What is a goroutine?"},
		{Role: "assistant", Content: "A lightweight thread."},
		{Role: "user", Content: "Quiz me on channels"},
	}
}

func TestChat_ReplyBuildsPersonalizedPrompt(t *testing.T) {
	repo := newFakeRepo()
	user := uuid.New()
	require.NoError(t, repo.UpsertProfile(context.Background(), &models.StudyProfile{UserID: user, Mode: models.ModeQuiz, Data: []byte(`{"level":"beginner"}`)}))
	repo.nearest = []models.ContextSnippet{{Content: "Channels are typed conduits."}}
	model := &fakeModel{reply: "Q1: what does close() do?"}
	svc := NewChatService(repo, model, zap.NewNop())

	msg, err := svc.Reply(context.Background(), ChatRequest{
		UserID:      user,
		Mode:        models.ModeQuiz,
		Messages:    conversation(),
		Preferences: []byte(`{"difficulty":"hard"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "assistant", msg.Role)
	assert.Equal(t, "Q1: what does close() do?", msg.Content)

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.True(t, req.Safe)
	assert.Equal(t, genai.DefaultMaxOutputTokens, req.MaxOutputTokens)
	require.Len(t, req.History, 2)
	assert.Equal(t, "What is a goroutine?", req.History[0].Text)
	assert.Contains(t, req.Prompt, "Mode: quiz\n")
	assert.Contains(t, req.Prompt, `User Preferences: {"difficulty":"hard"}`)
	assert.Contains(t, req.Prompt, `User Profile: {"level":"beginner"}`)
	assert.Contains(t, req.Prompt, "Context: Channels are typed conduits.")
	assert.Contains(t, req.Prompt, "following message:\nQuiz me on channels")

	require.Len(t, repo.embeddings, 1)
	assert.Equal(t, "Q1: what does close() do?", repo.embeddings[0].content)
	assert.Equal(t, user, repo.embeddings[0].userID)
}

func TestChat_EmbeddingFailureStillReplies(t *testing.T) {
	repo := newFakeRepo()
	repo.nearest = []models.ContextSnippet{{Content: "should not be used"}}
	model := &fakeModel{reply: "ok", embedErr: errors.New("quota")}
	svc := NewChatService(repo, model, zap.NewNop())

	_, err := svc.Reply(context.Background(), ChatRequest{UserID: uuid.New(), Mode: models.ModeStudy, Messages: conversation()})
	require.NoError(t, err)
	assert.NotContains(t, model.requests[0].Prompt, "should not be used")
	assert.Contains(t, model.requests[0].Prompt, "User Profile: null")
	assert.Empty(t, repo.embeddings)
}

func TestChat_ModelFailure(t *testing.T) {
	model := &fakeModel{genErr: &genai.HTTPError{StatusCode: 500, Message: "boom"}}
	svc := NewChatService(newFakeRepo(), model, zap.NewNop())

	_, err := svc.Reply(context.Background(), ChatRequest{UserID: uuid.New(), Mode: models.ModeStudy, Messages: conversation()})
	assert.ErrorIs(t, err, ErrModel)
}

func TestChat_ProfileStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.fail["GetProfile"] = errors.New("db down")
	svc := NewChatService(repo, &fakeModel{reply: "ok"}, zap.NewNop())

	_, err := svc.Reply(context.Background(), ChatRequest{UserID: uuid.New(), Mode: models.ModeStudy, Messages: conversation()})
	assert.ErrorIs(t, err, ErrStore)
}

func TestChat_Validation(t *testing.T) {
	svc := NewChatService(newFakeRepo(), &fakeModel{}, zap.NewNop())

	_, err := svc.Reply(context.Background(), ChatRequest{UserID: uuid.New(), Mode: models.ModeStudy})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Reply(context.Background(), ChatRequest{UserID: uuid.New(), Mode: models.ModeStudy, Messages: []models.ChatMessage{{Role: "user", Content: "  "}}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChat_StreamRelaysChunks(t *testing.T) {
	model := &fakeModel{chunks: []string{"Hel", "lo"}}
	svc := NewChatService(newFakeRepo(), model, zap.NewNop())

	var got []string
	err := svc.Stream(context.Background(), conversation(), func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, "Quiz me on channels", model.requests[0].Prompt)
	assert.Empty(t, model.requests[0].History)
}
