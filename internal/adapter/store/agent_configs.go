package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"techassist/internal/domain"
)

const agentConfigColumns = `id, agent_type, name, description, system_prompt, model_size,
	temperature, max_tokens, active, metadata, created_at, updated_at`

// GetByAgentType returns the configurations of one agent type, ordered by
// creation time then id.
func (s *Store) GetByAgentType(ctx context.Context, agentType domain.AgentType, activeOnly bool) ([]domain.AgentConfig, error) {
	q := "SELECT " + agentConfigColumns + " FROM agent_configs WHERE agent_type = ?"
	if activeOnly {
		q += " AND active = 1"
	}
	q += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, q, string(agentType))
	if err != nil {
		return nil, domain.NewDomainError("Store.GetByAgentType", domain.ErrPersistence, err.Error())
	}
	defer rows.Close()

	var out []domain.AgentConfig
	for rows.Next() {
		cfg, err := scanAgentConfig(rows)
		if err != nil {
			return nil, domain.NewDomainError("Store.GetByAgentType", domain.ErrPersistence, err.Error())
		}
		out = append(out, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("Store.GetByAgentType", domain.ErrPersistence, err.Error())
	}
	return out, nil
}

// GetByID returns ErrAgentConfigNotFound for an unknown id.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.AgentConfig, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentConfigColumns+" FROM agent_configs WHERE id = ?", id)
	cfg, err := scanAgentConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("Store.GetByID", domain.ErrAgentConfigNotFound, id)
	}
	if err != nil {
		return nil, domain.NewDomainError("Store.GetByID", domain.ErrPersistence, err.Error())
	}
	return cfg, nil
}

// Upsert inserts cfg or replaces the row with the same id. An empty id is
// assigned a new ULID. CreatedAt is kept across updates.
func (s *Store) Upsert(ctx context.Context, cfg *domain.AgentConfig) error {
	if !cfg.AgentType.Valid() {
		return domain.NewDomainError("Store.Upsert", domain.ErrInvalidInput, "agent type "+string(cfg.AgentType))
	}
	if cfg.ID == "" {
		cfg.ID = generateID()
	}
	if cfg.ModelSize == "" {
		cfg.ModelSize = domain.TierMedium
	}
	meta, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal agent metadata: %w", err)
	}

	now := s.now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_configs (`+agentConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_type = excluded.agent_type,
			name = excluded.name,
			description = excluded.description,
			system_prompt = excluded.system_prompt,
			model_size = excluded.model_size,
			temperature = excluded.temperature,
			max_tokens = excluded.max_tokens,
			active = excluded.active,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		cfg.ID, string(cfg.AgentType), cfg.Name, cfg.Description, cfg.SystemPrompt, string(cfg.ModelSize),
		cfg.Temperature, cfg.MaxTokens, boolToInt(cfg.Active), string(meta),
		formatTime(cfg.CreatedAt), formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		return domain.NewDomainError("Store.Upsert", domain.ErrPersistence, err.Error())
	}
	return nil
}

// SetActive toggles a configuration without rewriting it.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE agent_configs SET active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), formatTime(s.now()), id)
	if err != nil {
		return domain.NewDomainError("Store.SetActive", domain.ErrPersistence, err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("Store.SetActive", domain.ErrAgentConfigNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentConfig(row rowScanner) (*domain.AgentConfig, error) {
	var (
		cfg                  domain.AgentConfig
		agentType, modelSize string
		active               int
		meta                 string
		created, updated     string
	)
	err := row.Scan(&cfg.ID, &agentType, &cfg.Name, &cfg.Description, &cfg.SystemPrompt, &modelSize,
		&cfg.Temperature, &cfg.MaxTokens, &active, &meta, &created, &updated)
	if err != nil {
		return nil, err
	}
	cfg.AgentType = domain.AgentType(agentType)
	cfg.ModelSize = domain.ParseModelTier(modelSize)
	cfg.Active = active != 0
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &cfg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal agent metadata %s: %w", cfg.ID, err)
		}
	}
	cfg.CreatedAt = parseTime(created)
	cfg.UpdatedAt = parseTime(updated)
	return &cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
