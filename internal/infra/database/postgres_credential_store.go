package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// PostgresCredentialStore persists the single shared delivery credential.
type PostgresCredentialStore struct {
	db *sql.DB
}

func NewPostgresCredentialStore(db *sql.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

// Load returns the stored token, or nil when none has been authorized yet.
func (s *PostgresCredentialStore) Load(ctx context.Context) (*oauth2.Token, error) {
	query := `SELECT access_token, refresh_token, token_type, expiry FROM delivery_credentials WHERE id = 1`
	var (
		tok    oauth2.Token
		expiry sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading delivery credential: %w", err)
	}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return &tok, nil
}

// Save upserts the token.
func (s *PostgresCredentialStore) Save(ctx context.Context, tok *oauth2.Token) error {
	query := `INSERT INTO delivery_credentials (id, access_token, refresh_token, token_type, expiry, updated_at)
               VALUES (1, $1, $2, $3, $4, NOW())
               ON CONFLICT (id) DO UPDATE
               SET access_token = EXCLUDED.access_token,
                   refresh_token = EXCLUDED.refresh_token,
                   token_type = EXCLUDED.token_type,
                   expiry = EXCLUDED.expiry,
                   updated_at = NOW()`
	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry, Valid: true}
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	if _, err := s.db.ExecContext(ctx, query, tok.AccessToken, tok.RefreshToken, tokenType, expiry); err != nil {
		return fmt.Errorf("error saving delivery credential: %w", err)
	}
	return nil
}

// Clear removes the stored token so that every later send fails fast until
// an operator authorizes again.
func (s *PostgresCredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM delivery_credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("error clearing delivery credential: %w", err)
	}
	return nil
}
