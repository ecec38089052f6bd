package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studypal/internal/genai"
	"studypal/internal/models"
	"studypal/internal/repository"
)

const contextSnippets = 5

// Model is the slice of the generative-language client the chat needs.
type Model interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (string, error)
	Stream(ctx context.Context, req genai.GenerateRequest, onDelta func(string) error) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ChatService struct {
	repo   repository.Repository
	model  Model
	logger *zap.Logger
}

func NewChatService(repo repository.Repository, model Model, logger *zap.Logger) *ChatService {
	return &ChatService{repo: repo, model: model, logger: logger.Named("chat")}
}

type ChatRequest struct {
	UserID      uuid.UUID
	Mode        models.ProfileMode
	Messages    []models.ChatMessage
	Preferences json.RawMessage
}

func lastMessage(msgs []models.ChatMessage) (string, error) {
	if len(msgs) == 0 {
		return "", invalid("Messages are required")
	}
	last := strings.TrimSpace(msgs[len(msgs)-1].Content)
	if last == "" {
		return "", invalid("Last message must not be empty")
	}
	return last, nil
}

func toTurns(msgs []models.ChatMessage) []genai.Turn {
	out := make([]genai.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, genai.Turn{Role: m.Role, Text: m.Content})
	}
	return out
}

func jsonOrNull(raw json.RawMessage) string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "null"
	}
	return string(raw)
}

func buildPrompt(mode models.ProfileMode, prefs, profile json.RawMessage, snippets []models.ContextSnippet, message string) string {
	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		texts = append(texts, s.Content)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", mode)
	fmt.Fprintf(&b, "User Preferences: %s\n", jsonOrNull(prefs))
	fmt.Fprintf(&b, "User Profile: %s\n", jsonOrNull(profile))
	fmt.Fprintf(&b, "Context: %s\n\n", strings.Join(texts, "\n"))
	b.WriteString("Based on the above information, please provide a personalized response to the following message:\n")
	b.WriteString(message)
	return b.String()
}

// Reply answers the last message in a study or quiz conversation. The mode's
// profile and the nearest stored snippets are folded into the prompt, and the
// answer is stored for later retrieval. Embedding failures degrade to a reply
// without retrieved context.
func (s *ChatService) Reply(ctx context.Context, req ChatRequest) (*models.ChatMessage, error) {
	last, err := lastMessage(req.Messages)
	if err != nil {
		return nil, err
	}

	var (
		profile   json.RawMessage
		embedding []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.repo.GetProfile(gctx, req.UserID, req.Mode)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storeErr("get profile", err)
		}
		profile = p.Data
		return nil
	})
	g.Go(func() error {
		vec, err := s.model.Embed(gctx, last)
		if err != nil {
			s.logger.Warn("embedding failed, answering without context", zap.Error(err))
			return nil
		}
		embedding = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var snippets []models.ContextSnippet
	if embedding != nil {
		snippets, err = s.repo.NearestEmbeddings(ctx, req.UserID, embedding, contextSnippets)
		if err != nil {
			s.logger.Warn("context lookup failed", zap.Error(err))
			snippets = nil
		}
	}

	text, err := s.model.Generate(ctx, genai.GenerateRequest{
		History:         toTurns(req.Messages[:len(req.Messages)-1]),
		Prompt:          buildPrompt(req.Mode, req.Preferences, profile, snippets, last),
		MaxOutputTokens: genai.DefaultMaxOutputTokens,
		Safe:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	if embedding != nil {
		if err := s.repo.SaveEmbedding(ctx, req.UserID, text, embedding); err != nil {
			s.logger.Warn("could not store reply for future context", zap.Error(err))
		}
	}
	return &models.ChatMessage{Role: "assistant", Content: text}, nil
}

// Stream relays the model's answer to the last message chunk by chunk.
func (s *ChatService) Stream(ctx context.Context, msgs []models.ChatMessage, onDelta func(string) error) error {
	last, err := lastMessage(msgs)
	if err != nil {
		return err
	}
	_, err = s.model.Stream(ctx, genai.GenerateRequest{Prompt: last}, onDelta)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModel, err)
	}
	return nil
}
