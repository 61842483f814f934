package design

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"go-canvas/internal/scene"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateDesign(ctx context.Context, name string, ownerID int, width, height float64) (*Design, error) {
	d := &Design{
		ID:           uuid.NewString(),
		Name:         name,
		OwnerID:      ownerID,
		CanvasWidth:  width,
		CanvasHeight: height,
		Elements:     []*scene.Element{},
		Version:      1,
	}

	query := `
		INSERT INTO designs (id, name, owner_id, canvas_width, canvas_height, elements, version)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, 1)
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query, d.ID, d.Name, d.OwnerID, d.CanvasWidth, d.CanvasHeight).
		Scan(&d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create design: %w", err)
	}
	return d, nil
}

func (r *Repository) GetDesign(ctx context.Context, id string) (*Design, error) {
	query := `
		SELECT id, name, owner_id, canvas_width, canvas_height, elements, version, updated_at
		FROM designs WHERE id = $1
	`
	d := &Design{}
	var elements []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.OwnerID, &d.CanvasWidth, &d.CanvasHeight,
		&elements, &d.Version, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(elements, &d.Elements); err != nil {
		return nil, fmt.Errorf("decode elements for %s: %w", id, err)
	}
	return d, nil
}

func (r *Repository) ListDesigns(ctx context.Context, ownerID int) ([]*Design, error) {
	query := `
		SELECT id, name, owner_id, canvas_width, canvas_height, version, updated_at
		FROM designs WHERE owner_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var designs []*Design
	for rows.Next() {
		d := &Design{}
		if err := rows.Scan(&d.ID, &d.Name, &d.OwnerID, &d.CanvasWidth, &d.CanvasHeight,
			&d.Version, &d.UpdatedAt); err != nil {
			return nil, err
		}
		designs = append(designs, d)
	}
	return designs, rows.Err()
}

// SaveDesign persists the full element array, bumping the version counter.
// The bump is guarded by the caller's base version; a lost race returns
// ErrVersionConflict so the resolver can reconcile instead of overwriting.
func (r *Repository) SaveDesign(ctx context.Context, id string, req *SaveRequest) (*SaveResponse, error) {
	elements, err := json.Marshal(req.Elements)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}

	query := `
		UPDATE designs
		SET elements = $1, canvas_width = $2, canvas_height = $3,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND version = $5
		RETURNING version, updated_at
	`
	resp := &SaveResponse{DesignID: id}
	err = r.db.QueryRowContext(ctx, query,
		elements, req.CanvasWidth, req.CanvasHeight, id, req.BaseVersion).
		Scan(&resp.Version, &resp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the design is gone or someone saved first.
		if _, getErr := r.GetDesign(ctx, id); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Repository) DeleteDesign(ctx context.Context, id string, ownerID int) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM designs WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) AddComment(ctx context.Context, designID string, userID int, body string) (*Comment, error) {
	c := &Comment{DesignID: designID, UserID: userID, Body: body}
	query := `
		INSERT INTO design_comments (design_id, user_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, designID, userID, body).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) ListComments(ctx context.Context, designID string) ([]*Comment, error) {
	query := `
		SELECT c.id, c.design_id, c.user_id, u.username, c.body, c.created_at
		FROM design_comments c
		JOIN users u ON c.user_id = u.id
		WHERE c.design_id = $1
		ORDER BY c.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.DesignID, &c.UserID, &c.Username, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *Repository) DeleteComment(ctx context.Context, commentID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM design_comments WHERE id = $1 AND user_id = $2", commentID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
