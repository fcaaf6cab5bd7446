package store

import (
	"context"
	"encoding/json"
	"fmt"

	"techassist/internal/domain"
)

// GetMessages returns the turns of a conversation oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]domain.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, role, content, agent_type, metadata, created_at
		FROM conversation_messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, domain.NewDomainError("Store.GetMessages", domain.ErrPersistence, err.Error())
	}
	defer rows.Close()

	out := []domain.ConversationMessage{}
	for rows.Next() {
		var (
			m         domain.ConversationMessage
			agentType string
			meta      string
			created   string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &agentType, &meta, &created); err != nil {
			return nil, domain.NewDomainError("Store.GetMessages", domain.ErrPersistence, err.Error())
		}
		m.AgentType = domain.AgentType(agentType)
		m.Timestamp = parseTime(created)
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, domain.NewDomainError("Store.GetMessages", domain.ErrPersistence,
					fmt.Sprintf("metadata of %s: %v", m.ID, err))
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("Store.GetMessages", domain.ErrPersistence, err.Error())
	}
	return out, nil
}

// AddMessage appends one turn and returns it with its id and timestamp.
func (s *Store) AddMessage(ctx context.Context, msg domain.NewMessage) (*domain.ConversationMessage, error) {
	if msg.ConversationID == "" {
		return nil, domain.NewDomainError("Store.AddMessage", domain.ErrInvalidInput, "conversation id is required")
	}
	switch msg.Role {
	case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
	default:
		return nil, domain.NewDomainError("Store.AddMessage", domain.ErrInvalidInput, "role "+msg.Role)
	}

	meta := "{}"
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal message metadata: %w", err)
		}
		meta = string(b)
	}

	out := &domain.ConversationMessage{
		ID:             generateID(),
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		Role:           msg.Role,
		Content:        msg.Content,
		Timestamp:      s.now(),
		AgentType:      msg.AgentType,
		Metadata:       msg.Metadata,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, user_id, role, content, agent_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.ConversationID, out.UserID, out.Role, out.Content, string(out.AgentType), meta, formatTime(out.Timestamp),
	)
	if err != nil {
		return nil, domain.NewDomainError("Store.AddMessage", domain.ErrPersistence, err.Error())
	}
	return out, nil
}

// DeleteConversation removes every turn of a conversation.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversation_messages WHERE conversation_id = ?", conversationID)
	if err != nil {
		return false, domain.NewDomainError("Store.DeleteConversation", domain.ErrPersistence, err.Error())
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
