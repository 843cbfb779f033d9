package transform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rgonek/confluence-space-export/internal/confluence"
)

// UserResolver resolves user mentions to display names after the page body
// has been rendered. Lookups are cached so each user costs one API call per
// export, and failures fall back to leaving the placeholder untouched. A
// single resolver is shared by all export workers; the mutex is held across
// the lookup so concurrent requests for the same user collapse into one call.
type UserResolver struct {
	api confluence.API

	mu    sync.Mutex
	cache map[string]string
}

func NewUserResolver(api confluence.API) *UserResolver {
	return &UserResolver{
		api:   api,
		cache: map[string]string{},
	}
}

// Resolve replaces each mention placeholder in content with a plain
// @DisplayName mention. Unresolvable users keep their placeholder.
func (u *UserResolver) Resolve(ctx context.Context, content string, users []UserRef) (string, error) {
	for _, ref := range users {
		name, err := u.displayName(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return content, ctx.Err()
			}
			continue
		}
		content = strings.ReplaceAll(content, ref.Placeholder, "@"+name)
	}
	return content, nil
}

func (u *UserResolver) displayName(ctx context.Context, ref UserRef) (string, error) {
	key := ref.UserKey
	if key == "" {
		key = "name:" + ref.Username
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if name, ok := u.cache[key]; ok {
		if name == "" {
			return "", fmt.Errorf("user %s previously unresolvable", key)
		}
		return name, nil
	}

	var (
		user confluence.User
		err  error
	)
	if ref.UserKey != "" {
		user, err = u.api.GetUser(ctx, ref.UserKey)
	} else if ref.Username != "" {
		user, err = u.api.GetUserByUsername(ctx, ref.Username)
	} else {
		return "", fmt.Errorf("user reference has no key or username")
	}
	if err != nil {
		u.cache[key] = ""
		return "", fmt.Errorf("resolve user %s: %w", key, err)
	}

	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	u.cache[key] = name
	return name, nil
}
