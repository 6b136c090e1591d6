package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/kv"
	"github.com/conorfennell/qaforum/internal/storage"
)

// Keeper persists the CLI's logged-in user under the currentUser key.
type Keeper struct {
	area kv.Store
}

func NewKeeper(area kv.Store) *Keeper {
	return &Keeper{area: area}
}

// Current returns the logged-in user, or nil. A corrupt marker is removed
// and treated as logged out.
func (k *Keeper) Current(ctx context.Context) (*domain.SessionMarker, error) {
	raw, ok, err := k.area.Get(ctx, storage.KeyCurrentUser)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var m domain.SessionMarker
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m.Username == "" {
		slog.Warn("Discarding corrupt session marker", "key", storage.KeyCurrentUser, "error", err)
		if err := k.area.Delete(ctx, storage.KeyCurrentUser); err != nil {
			return nil, fmt.Errorf("failed to clear session: %w", err)
		}
		return nil, nil
	}
	return &m, nil
}

// Login records m as the logged-in user.
func (k *Keeper) Login(ctx context.Context, m domain.SessionMarker) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := k.area.Set(ctx, storage.KeyCurrentUser, string(b)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Logout forgets the logged-in user.
func (k *Keeper) Logout(ctx context.Context) error {
	if err := k.area.Delete(ctx, storage.KeyCurrentUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
