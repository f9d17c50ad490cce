package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/onchess/client-go/internal/domain"
)

var ErrDuplicateGame = errors.New("finished game already archived")

type Repository interface {
	InsertGame(ctx context.Context, game *domain.FinishedGame) (int64, error)
	GetGame(ctx context.Context, gameID uint64, wallet string) (*domain.FinishedGame, error)
	GetRecentGames(ctx context.Context, wallet string, limit int) ([]*domain.FinishedGame, error)
	Close() error
}

type repository struct {
	db *sql.DB
}

// NewRepository opens a Postgres-backed archive. The caller owns the returned
// repository and must Close it.
func NewRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &repository{db: db}, nil
}

func (r *repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *repository) InsertGame(ctx context.Context, game *domain.FinishedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil finished game payload")
	}

	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO finished_games (
			game_id,
			session_uuid,
			wallet,
			white_player,
			black_player,
			outcome,
			winner,
			wager_amount,
			moves_san,
			final_fen,
			time_per_move,
			started_at,
			ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13)
		ON CONFLICT (game_id, wallet) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.GameID,
		game.SessionUUID,
		game.Wallet,
		game.WhitePlayer,
		game.BlackPlayer,
		game.Outcome,
		game.Winner,
		game.WagerAmount,
		movesSAN,
		game.FinalFEN,
		game.TimePerMove,
		game.StartedAt,
		game.EndedAt,
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert finished game: %w", err)
	}
	return id.Int64, nil
}

const selectColumns = `
		id,
		game_id,
		session_uuid,
		wallet,
		white_player,
		black_player,
		outcome,
		winner,
		wager_amount,
		moves_san,
		final_fen,
		time_per_move,
		started_at,
		ended_at`

func (r *repository) GetGame(ctx context.Context, gameID uint64, wallet string) (*domain.FinishedGame, error) {
	const query = `
		SELECT` + selectColumns + `
		FROM finished_games
		WHERE game_id = $1 AND wallet = $2`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, gameID, wallet))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select finished game: %w", err)
	}
	return game, nil
}

func (r *repository) GetRecentGames(ctx context.Context, wallet string, limit int) ([]*domain.FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT` + selectColumns + `
		FROM finished_games
		WHERE wallet = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("select finished games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.FinishedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finished game: %w", err)
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finished games: %w", err)
	}
	return games, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.FinishedGame, error) {
	var (
		game         domain.FinishedGame
		movesSANJSON []byte
	)
	if err := row.Scan(
		&game.ID,
		&game.GameID,
		&game.SessionUUID,
		&game.Wallet,
		&game.WhitePlayer,
		&game.BlackPlayer,
		&game.Outcome,
		&game.Winner,
		&game.WagerAmount,
		&movesSANJSON,
		&game.FinalFEN,
		&game.TimePerMove,
		&game.StartedAt,
		&game.EndedAt,
	); err != nil {
		return nil, err
	}
	if len(movesSANJSON) > 0 {
		if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
			return nil, fmt.Errorf("unmarshal moves_san: %w", err)
		}
	}
	return &game, nil
}
