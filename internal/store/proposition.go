package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type PropositionStore struct {
	db *pgxpool.Pool
}

func NewPropositionStore(db *pgxpool.Pool) *PropositionStore {
	return &PropositionStore{db: db}
}

func encodeMentions(mentions []domain.Mention) ([]byte, error) {
	if len(mentions) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(mentions)
	if err != nil {
		return nil, fmt.Errorf("marshal mentions: %w", err)
	}
	return data, nil
}

func decodeMentions(data []byte) ([]domain.Mention, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var mentions []domain.Mention
	if err := json.Unmarshal(data, &mentions); err != nil {
		return nil, fmt.Errorf("unmarshal mentions: %w", err)
	}
	return mentions, nil
}

func (s *PropositionStore) Create(ctx context.Context, p *domain.Proposition) error {
	if err := p.Validate(); err != nil {
		return err
	}

	mentions, err := encodeMentions(p.Mentions)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		embedding = &v
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO propositions (id, context_id, text, mentions, embedding, confidence, decay, importance, level, source_ids, grounding, status, reasoning, created_at, revised_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.ContextID, p.Text, mentions, embedding, p.Confidence, p.Decay, p.Importance,
		p.Level, p.SourceIDs, p.Grounding, p.Status, p.Reasoning, p.Created, p.Revised,
	)
	if err != nil {
		return fmt.Errorf("insert proposition: %w", err)
	}
	return nil
}

const propositionColumns = `id, context_id, text, mentions, confidence, decay, importance, level, source_ids, grounding, status, reasoning, created_at, revised_at`

func scanProposition(row pgx.Row) (*domain.Proposition, error) {
	p := &domain.Proposition{}
	var mentions []byte
	err := row.Scan(&p.ID, &p.ContextID, &p.Text, &mentions, &p.Confidence, &p.Decay,
		&p.Importance, &p.Level, &p.SourceIDs, &p.Grounding, &p.Status, &p.Reasoning,
		&p.Created, &p.Revised)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Mentions, err = decodeMentions(mentions)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PropositionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposition, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+propositionColumns+` FROM propositions WHERE id = $1`, id)
	return scanProposition(row)
}

// Save persists a revised copy under its existing id. The revised timestamp
// is kept monotone server-side so concurrent writers cannot move it backward.
func (s *PropositionStore) Save(ctx context.Context, p *domain.Proposition) error {
	if err := p.Validate(); err != nil {
		return err
	}

	mentions, err := encodeMentions(p.Mentions)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE propositions
		 SET text = $2, mentions = $3, confidence = $4, decay = $5, importance = $6,
		     level = $7, source_ids = $8, grounding = $9, status = $10, reasoning = $11,
		     revised_at = GREATEST(revised_at, $12)
		 WHERE id = $1`,
		p.ID, p.Text, mentions, p.Confidence, p.Decay, p.Importance,
		p.Level, p.SourceIDs, p.Grounding, p.Status, p.Reasoning, p.Revised,
	)
	if err != nil {
		return fmt.Errorf("update proposition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PropositionStore) SearchSimilar(ctx context.Context, contextID string, embedding []float32, topK int, threshold float32) ([]domain.PropositionWithScore, error) {
	if topK <= 0 {
		topK = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT `+propositionColumns+`, 1 - (embedding <=> $1) AS score
		 FROM propositions
		 WHERE context_id = $2 AND status = $3 AND embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $4
		 ORDER BY score DESC
		 LIMIT $5`,
		vec, contextID, domain.StatusActive, threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("search similar query: %w", err)
	}
	defer rows.Close()

	var results []domain.PropositionWithScore
	for rows.Next() {
		var ps domain.PropositionWithScore
		var mentions []byte
		err := rows.Scan(&ps.ID, &ps.ContextID, &ps.Text, &mentions, &ps.Confidence, &ps.Decay,
			&ps.Importance, &ps.Level, &ps.SourceIDs, &ps.Grounding, &ps.Status, &ps.Reasoning,
			&ps.Created, &ps.Revised, &ps.Score)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		ps.Mentions, err = decodeMentions(mentions)
		if err != nil {
			return nil, err
		}
		results = append(results, ps)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search similar rows: %w", err)
	}
	return results, nil
}

func (s *PropositionStore) List(ctx context.Context, q domain.PropositionQuery) ([]domain.Proposition, error) {
	var conditions []string
	var args []any

	if q.ContextID != "" {
		conditions = append(conditions, fmt.Sprintf("context_id = $%d", len(args)+1))
		args = append(args, q.ContextID)
	}
	if q.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*q.Status))
	}
	if q.MinLevel != nil {
		conditions = append(conditions, fmt.Sprintf("level >= $%d", len(args)+1))
		args = append(args, *q.MinLevel)
	}
	if q.MaxLevel != nil {
		conditions = append(conditions, fmt.Sprintf("level <= $%d", len(args)+1))
		args = append(args, *q.MaxLevel)
	}

	query := `SELECT ` + propositionColumns + `, embedding FROM propositions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list propositions: %w", err)
	}
	defer rows.Close()

	var results []domain.Proposition
	for rows.Next() {
		var p domain.Proposition
		var mentions []byte
		var embedding *pgvector.Vector
		err := rows.Scan(&p.ID, &p.ContextID, &p.Text, &mentions, &p.Confidence, &p.Decay,
			&p.Importance, &p.Level, &p.SourceIDs, &p.Grounding, &p.Status, &p.Reasoning,
			&p.Created, &p.Revised, &embedding)
		if err != nil {
			return nil, fmt.Errorf("scan proposition row: %w", err)
		}
		p.Mentions, err = decodeMentions(mentions)
		if err != nil {
			return nil, err
		}
		if embedding != nil {
			p.Embedding = embedding.Slice()
		}
		// Entity membership cannot be pushed into SQL because mentions are a
		// jsonb blob; filter here.
		if q.EntityID != nil && !q.Matches(&p) {
			continue
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *PropositionStore) CountByContext(ctx context.Context, contextID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM propositions WHERE context_id = $1`, contextID,
	).Scan(&count)
	return count, err
}

func (s *PropositionStore) ListContextIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT context_id FROM propositions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
