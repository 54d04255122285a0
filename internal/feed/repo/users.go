package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/bet-feed/internal/feed"
)

// UserRepo é a fonte das consultas de identidade pública e VIP.
// Os métodos Fetch* têm a assinatura dos fetchers do cache de lookup:
// (nil, nil) quando o usuário não existe.
type UserRepo struct {
	DB *sql.DB
}

func (r *UserRepo) FetchUser(ctx context.Context, userID string) (*feed.UserSnapshot, error) {
	const q = `
		SELECT id, COALESCE(display_name, ''), username, is_private
		FROM users
		WHERE id = $1;
	`
	var u feed.UserSnapshot
	err := r.DB.QueryRowContext(ctx, q, userID).Scan(&u.ID, &u.DisplayName, &u.Handle, &u.IsPrivate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *UserRepo) FetchVip(ctx context.Context, userID string) (*feed.VipSnapshot, error) {
	const q = `
		SELECT t.level, COALESCE(t.badge_image_url, '')
		FROM user_vip_status s
		JOIN vip_tiers t ON t.id = s.tier_id
		WHERE s.user_id = $1;
	`
	var v feed.VipSnapshot
	err := r.DB.QueryRowContext(ctx, q, userID).Scan(&v.Level, &v.BadgeImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch vip %s: %w", userID, err)
	}
	return &v, nil
}

// UpsertUser e SetPrivate existem para o simulador; o cadastro real é externo.
func (r *UserRepo) UpsertUser(ctx context.Context, u feed.UserSnapshot) error {
	const q = `
		INSERT INTO users (id, username, display_name, is_private)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, display_name = EXCLUDED.display_name;
	`
	if _, err := r.DB.ExecContext(ctx, q, u.ID, u.Handle, u.DisplayName, u.IsPrivate); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (r *UserRepo) SetPrivate(ctx context.Context, userID string, private bool) error {
	const q = `UPDATE users SET is_private = $2 WHERE id = $1;`
	if _, err := r.DB.ExecContext(ctx, q, userID, private); err != nil {
		return fmt.Errorf("set privacy %s: %w", userID, err)
	}
	return nil
}

// SetVip associa o usuário ao tier do nível informado.
func (r *UserRepo) SetVip(ctx context.Context, userID string, level int) error {
	const q = `
		INSERT INTO user_vip_status (user_id, tier_id)
		SELECT $1, id FROM vip_tiers WHERE level = $2
		ON CONFLICT (user_id) DO UPDATE
		SET tier_id = EXCLUDED.tier_id, updated_at = now();
	`
	if _, err := r.DB.ExecContext(ctx, q, userID, level); err != nil {
		return fmt.Errorf("set vip %s: %w", userID, err)
	}
	return nil
}
