package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/pkg/configuration"
	"github.com/talkbase/talkbase/pkg/llm"
)

// Rewrite output contract: the model answers with exactly one of these
// prefixes. Anything else falls back to the original question.
const (
	rewrittenPrefix = "REWRITTEN:"
	unchangedPrefix = "UNCHANGED"
)

const rewriteInstruction = `You reformulate customer support questions.
Given the conversation history and the latest question, decide whether the
question depends on prior context (pronouns, ellipsis, backreferences).
If it does, answer with "REWRITTEN: " followed by a fully self-contained
version of the question. If it is already self-contained, answer with
"UNCHANGED". Answer with nothing else.`

// Exchange is one answered customer question.
type Exchange struct {
	Question string
	Answer   string
}

type ContextTrackerConfig struct {
	MessageRepo conversation.MessageRepository
	Generator   llm.Generator

	HistoryExchanges int
	// ScanLimit bounds how many recent messages are inspected when
	// pairing. Zero means twice the exchange budget plus slack for
	// unpaired messages.
	ScanLimit int
}

// ContextTracker pairs customer questions with the AI answers that
// immediately follow them and rewrites context-dependent questions into
// standalone ones for retrieval.
type ContextTracker struct {
	messageRepo conversation.MessageRepository
	generator   llm.Generator

	historyExchanges int
	scanLimit        int
}

func NewContextTracker(config ContextTrackerConfig) *ContextTracker {
	if config.HistoryExchanges == 0 {
		config.HistoryExchanges = configuration.Use().Pipeline.HistoryExchanges
	}
	if config.ScanLimit == 0 {
		config.ScanLimit = config.HistoryExchanges * 4
	}
	return &ContextTracker{
		messageRepo:      config.MessageRepo,
		generator:        config.Generator,
		historyExchanges: config.HistoryExchanges,
		scanLimit:        config.ScanLimit,
	}
}

// RecentExchanges returns up to limit answered (question, answer) pairs,
// most recent last. Pairing is a two-state walk over the messages in
// reverse-chronological order: an AI message arms the machine, the
// customer message immediately preceding it completes a pair. Human and
// system messages reset the machine, so interleaved agent replies never
// misalign a pair.
func (t *ContextTracker) RecentExchanges(ctx context.Context, conversationID uuid.UUID, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = t.historyExchanges
	}
	msgs, err := t.messageRepo.RecentByConversation(ctx, conversationID, t.scanLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent messages")
	}

	var exchanges []Exchange
	var pendingAnswer string
	awaitingQuestion := false
	for _, msg := range msgs {
		switch msg.Sender() {
		case conversation.SenderAI:
			pendingAnswer = msg.Content()
			awaitingQuestion = true
		case conversation.SenderCustomer:
			if awaitingQuestion {
				exchanges = append(exchanges, Exchange{Question: msg.Content(), Answer: pendingAnswer})
			}
			awaitingQuestion = false
		default:
			awaitingQuestion = false
		}
		if len(exchanges) == limit {
			break
		}
	}

	// Collected newest-first, callers want oldest-first.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// RewriteStandalone asks the model to resolve context-dependent phrasing
// in question. Malformed model output or a generation error never blocks
// the pipeline: the original question is returned unchanged.
func (t *ContextTracker) RewriteStandalone(ctx context.Context, question string, history []Exchange) string {
	if len(history) == 0 {
		return question
	}

	messages := []llm.Message{llm.SystemMessage(rewriteInstruction)}
	for _, exchange := range history {
		messages = append(messages, llm.UserMessage(exchange.Question), llm.AssistantMessage(exchange.Answer))
	}
	messages = append(messages, llm.UserMessage(fmt.Sprintf("Latest question: %s", question)))

	completion, err := t.generator.Generate(ctx, messages)
	if err != nil {
		configuration.Use().Logger().
			WithError(err).
			Warn("query rewrite failed, using original question")
		return question
	}

	output := strings.TrimSpace(completion.Text)
	switch {
	case strings.HasPrefix(output, rewrittenPrefix):
		rewritten := strings.TrimSpace(strings.TrimPrefix(output, rewrittenPrefix))
		if rewritten == "" {
			return question
		}
		return rewritten
	case strings.HasPrefix(output, unchangedPrefix):
		return question
	default:
		return question
	}
}
