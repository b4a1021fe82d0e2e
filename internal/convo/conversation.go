// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package convo

import (
	"context"
	"errors"

	"github.com/mnemo-dev/mnemo/internal/llm"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// ConversationNamespace is the reserved document namespace for transcripts.
const ConversationNamespace = "conversations"

// Conversation is an ordered transcript. Its ID doubles as the usage ledger
// group, so spend can be summed per conversation.
type Conversation struct {
	ID       string
	Messages []llm.Message
}

// Append adds one turn to the transcript.
func (c *Conversation) Append(role, content string) {
	c.Messages = append(c.Messages, llm.Message{Role: role, Content: content})
}

// Conversations stores and restores transcripts.
type Conversations struct {
	docs   store.DocumentStore
	ledger *llm.Ledger
}

// NewConversations wires transcript persistence. A nil ledger disables
// TotalCost.
func NewConversations(docs store.DocumentStore, ledger *llm.Ledger) *Conversations {
	return &Conversations{docs: docs, ledger: ledger}
}

// Save persists the conversation. A conversation with no ID is inserted and
// its generated id is written back; one with an ID is overwritten in place.
func (c *Conversations) Save(ctx context.Context, conv *Conversation) error {
	messages := make([]any, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		messages = append(messages, map[string]any{"role": msg.Role, "content": msg.Content})
	}
	fields := map[string]any{"messages": messages}

	if conv.ID == "" {
		id, err := c.docs.InsertOne(ctx, ConversationNamespace, fields)
		if err != nil {
			return err
		}
		conv.ID = id
		return nil
	}

	err := c.docs.ReplaceByID(ctx, ConversationNamespace, conv.ID, fields)
	if errors.Is(err, store.ErrNotFound) {
		return mnemoerr.Wrap(err, mnemoerr.CodeConvoConversationNotFound, "conversation not found",
			mnemoerr.Field("conversation_id", conv.ID))
	}
	return err
}

// Load restores the conversation with the given id.
func (c *Conversations) Load(ctx context.Context, id string) (*Conversation, error) {
	doc, err := c.docs.FindByID(ctx, ConversationNamespace, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, mnemoerr.Wrap(err, mnemoerr.CodeConvoConversationNotFound, "conversation not found",
				mnemoerr.Field("conversation_id", id))
		}
		return nil, err
	}

	conv := &Conversation{ID: doc.ID}
	raw, _ := doc.Fields["messages"].([]any)
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		content, _ := entry["content"].(string)
		conv.Messages = append(conv.Messages, llm.Message{Role: role, Content: content})
	}
	return conv, nil
}

// TotalCost sums the ledger entries recorded under this conversation's id.
func (c *Conversations) TotalCost(ctx context.Context, id string) (float64, error) {
	if c.ledger == nil {
		return 0, nil
	}
	return c.ledger.TotalCost(ctx, id)
}
