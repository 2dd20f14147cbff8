package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/pkg/anthropic"
)

// ErrBadRequest tags client-side validation failures so the HTTP layer
// can map them to a 400 response.
var ErrBadRequest = errors.New("bad request")

const (
	defaultModel           = "claude-haiku-4-5-20251001"
	defaultMaxHistoryTurns = 10
	defaultMaxTokens       = 1024
	defaultKeywordsDir     = "keywords_llm"
)

// Rank-request detection. A ranking turn bypasses free-form chat and
// computes the order deterministically, asking the model only for the
// explanation.
var rankRequestRes = []*regexp.Regexp{
	regexp.MustCompile(`rank\s*(them|these|my|the)`),
	regexp.MustCompile(`what'?s\s+the\s+best`),
	regexp.MustCompile(`which\s+(one\s+)?(best|first)`),
	regexp.MustCompile(`order\s+(them|these)`),
}

func isRankRequest(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, re := range rankRequestRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Options tune the assistant service. Zero values fall back to defaults.
type Options struct {
	Model           string
	MaxHistoryTurns int
	MaxTokens       int64
	KeywordsDir     string
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.MaxHistoryTurns <= 0 {
		o.MaxHistoryTurns = defaultMaxHistoryTurns
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.KeywordsDir == "" {
		o.KeywordsDir = defaultKeywordsDir
	}
	return o
}

// Service runs assistant chat turns and location rankings.
type Service struct {
	llm  anthropic.Client
	log  *zap.Logger
	opts Options
	now  func() time.Time
}

// NewService builds a Service on top of an Anthropic client.
func NewService(llm anthropic.Client, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		llm:  llm,
		log:  log,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// Turn is one prior message in the conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is one chat turn from the client.
type ChatRequest struct {
	Message             string             `json:"message"`
	ConversationHistory []Turn             `json:"conversationHistory,omitempty"`
	Focus               Focus              `json:"focus"`
	Weights             map[string]float64 `json:"weights,omitempty"`
	UseDefaults         *bool              `json:"useDefaults,omitempty"`
	Locations           []Location         `json:"locationsWithMetrics,omitempty"`
}

// ChatResponse is the assistant's reply plus any structured artifacts
// extracted from it.
type ChatResponse struct {
	Reply       string             `json:"reply"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	RankedIDs   []string           `json:"rankedIds,omitempty"`
	MapKeywords []string           `json:"mapKeywords,omitempty"`
}

// Chat processes one turn: builds the system instruction from the focus
// and location context, detects rank requests, calls the model, and
// parses weights and map keywords out of the reply.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrBadRequest)
	}
	if !req.Focus.Valid() {
		return nil, fmt.Errorf("%w: focus must be tenant or small_business", ErrBadRequest)
	}

	weights := s.effectiveWeights(req.Focus, req.Weights, req.UseDefaults)
	messages := s.historyMessages(req.ConversationHistory)

	var rankedIDs []string
	finalPrompt := req.Message

	if len(req.Locations) >= 2 && isRankRequest(req.Message) {
		ranked := RankLocations(req.Locations, weights, MetricIDs)
		rankedIDs = make([]string, len(ranked))
		parts := make([]string, len(ranked))
		for i, loc := range ranked {
			rankedIDs[i] = loc.ID
			name := loc.Label
			if name == "" {
				name = loc.ID
			}
			parts[i] = fmt.Sprintf("#%d: %s", i+1, name)
		}
		rankSummary := strings.Join(parts, ", ")
		finalPrompt = fmt.Sprintf(
			"The user asked to rank these locations. Here is the ranked order: %s. "+
				"In 2-3 sentences, explain why the first location ranks best given their priorities "+
				"(weights: %s). Use only the metric values from the context.",
			rankSummary, formatWeights(weights))
		messages = append(messages, anthropic.Message{Role: "user", Content: finalPrompt})

		resp, err := s.createMessage(ctx, req.Focus, req.Locations, messages)
		if err != nil {
			return nil, err
		}
		reply := strings.TrimSpace(textOf(resp))
		if reply == "" {
			reply = fmt.Sprintf("Ranked order: %s.", rankSummary)
		}
		return s.finishTurn(req.Message, reply, rankedIDs), nil
	}

	messages = append(messages, anthropic.Message{Role: "user", Content: finalPrompt})
	resp, err := s.createMessage(ctx, req.Focus, req.Locations, messages)
	if err != nil {
		return nil, err
	}
	return s.finishTurn(req.Message, strings.TrimSpace(textOf(resp)), nil), nil
}

// RankRequest asks for a deterministic ranking without a chat turn.
type RankRequest struct {
	Focus       Focus              `json:"focus"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	UseDefaults *bool              `json:"useDefaults,omitempty"`
	Locations   []Location         `json:"locationsWithMetrics"`
}

// RankResponse carries the ranked locations, best first.
type RankResponse struct {
	RankedIDs []string   `json:"rankedIds"`
	Ranked    []Location `json:"ranked"`
}

// Rank orders the request's locations by weighted score.
func (s *Service) Rank(req RankRequest) (*RankResponse, error) {
	if !req.Focus.Valid() {
		return nil, fmt.Errorf("%w: focus must be tenant or small_business", ErrBadRequest)
	}
	if len(req.Locations) < 2 {
		return nil, fmt.Errorf("%w: at least two locations are required", ErrBadRequest)
	}

	weights := s.effectiveWeights(req.Focus, req.Weights, req.UseDefaults)
	ranked := RankLocations(req.Locations, weights, MetricIDs)
	ids := make([]string, len(ranked))
	for i, loc := range ranked {
		ids[i] = loc.ID
	}
	return &RankResponse{RankedIDs: ids, Ranked: ranked}, nil
}

func (s *Service) effectiveWeights(focus Focus, weights map[string]float64, useDefaults *bool) map[string]float64 {
	if (useDefaults == nil || *useDefaults) || len(weights) == 0 {
		return copyWeights(DefaultWeights[focus])
	}
	return copyWeights(weights)
}

// historyMessages trims the conversation to the most recent turns and
// maps it onto the Anthropic role scheme.
func (s *Service) historyMessages(history []Turn) []anthropic.Message {
	maxEntries := s.opts.MaxHistoryTurns * 2
	if len(history) > maxEntries {
		history = history[len(history)-maxEntries:]
	}
	messages := make([]anthropic.Message, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, anthropic.Message{Role: role, Content: turn.Content})
	}
	return messages
}

func (s *Service) createMessage(ctx context.Context, focus Focus, locations []Location, messages []anthropic.Message) (*anthropic.MessageResponse, error) {
	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.opts.Model,
		MaxTokens: s.opts.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: buildSystemInstruction(focus, locations)}},
		Messages:  messages,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(s.opts.Model, "assistant_chat")
	return resp, nil
}

// finishTurn extracts structured artifacts from the reply and persists
// any map keywords for the frontend to pick up.
func (s *Service) finishTurn(userMessage, reply string, rankedIDs []string) *ChatResponse {
	out := &ChatResponse{Reply: reply, RankedIDs: rankedIDs}

	if weights := ParseWeightsFromReply(reply); weights != nil {
		out.Weights = weights
	}
	if keywords := ParseMapKeywordsFromReply(reply); keywords != nil {
		out.MapKeywords = keywords
		if path, err := writeKeywordsToFile(s.opts.KeywordsDir, keywords, userMessage, s.now()); err != nil {
			s.log.Warn("failed to persist map keywords", zap.Error(err))
		} else {
			s.log.Debug("map keywords persisted",
				zap.String("path", path),
				zap.Int("count", len(keywords)))
		}
	}
	return out
}

func textOf(resp *anthropic.MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
