package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/onchess/client-go/internal/domain"
)

// memrepo is an in-memory archive used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID    map[int64]*domain.FinishedGame
	gamesByUser  map[string][]*domain.FinishedGame // wallet -> games, latest last
	gamesByIndex map[string]*domain.FinishedGame   // gameID|wallet -> game
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:    make(map[int64]*domain.FinishedGame),
		gamesByUser:  make(map[string][]*domain.FinishedGame),
		gamesByIndex: make(map[string]*domain.FinishedGame),
	}
}

func (m *memrepo) Close() error { return nil }

func (m *memrepo) InsertGame(ctx context.Context, game *domain.FinishedGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}

	key := m.gameKey(game.GameID, game.Wallet)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gamesByIndex[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	id := m.nextID
	copy := *game
	copy.ID = id
	copy.MovesSAN = append([]string(nil), game.MovesSAN...)

	m.gamesByID[id] = &copy
	m.gamesByIndex[key] = &copy
	m.gamesByUser[game.Wallet] = append(m.gamesByUser[game.Wallet], &copy)

	return id, nil
}

func (m *memrepo) GetGame(ctx context.Context, gameID uint64, wallet string) (*domain.FinishedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	game, ok := m.gamesByIndex[m.gameKey(gameID, wallet)]
	if !ok {
		return nil, nil
	}
	out := *game
	return &out, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, wallet string, limit int) ([]*domain.FinishedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.gamesByUser[wallet]
	if len(list) == 0 {
		return []*domain.FinishedGame{}, nil
	}
	items := append([]*domain.FinishedGame(nil), list...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.FinishedGame, 0, len(items))
	for _, g := range items {
		copy := *g
		out = append(out, &copy)
	}
	return out, nil
}

func (m *memrepo) gameKey(gameID uint64, wallet string) string {
	return fmt.Sprintf("%d|%s", gameID, wallet)
}
