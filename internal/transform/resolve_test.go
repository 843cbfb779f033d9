package transform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rgonek/confluence-space-export/internal/confluence"
)

type fakeUserAPI struct {
	confluence.API
	mu    sync.Mutex
	users map[string]confluence.User
	calls int
}

func (f *fakeUserAPI) GetUser(_ context.Context, userKey string) (confluence.User, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if user, ok := f.users[userKey]; ok {
		return user, nil
	}
	return confluence.User{}, errors.New("no such user")
}

func (f *fakeUserAPI) GetUserByUsername(_ context.Context, username string) (confluence.User, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if user, ok := f.users["name:"+username]; ok {
		return user, nil
	}
	return confluence.User{}, errors.New("no such user")
}

func TestResolveReplacesPlaceholder(t *testing.T) {
	api := &fakeUserAPI{users: map[string]confluence.User{
		"abc123": {UserKey: "abc123", DisplayName: "Jane Doe"},
	}}
	resolver := NewUserResolver(api)

	ref := UserRef{UserKey: "abc123", Placeholder: "[~abc123](https://wiki.example.com/display/~abc123)"}
	content := "Reviewed by " + ref.Placeholder + "."

	resolved, err := resolver.Resolve(context.Background(), content, []UserRef{ref})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != "Reviewed by @Jane Doe." {
		t.Fatalf("content = %q", resolved)
	}
}

func TestResolveCachesLookups(t *testing.T) {
	api := &fakeUserAPI{users: map[string]confluence.User{
		"abc123": {UserKey: "abc123", DisplayName: "Jane Doe"},
	}}
	resolver := NewUserResolver(api)
	ref := UserRef{UserKey: "abc123", Placeholder: "@@u"}

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "@@u", []UserRef{ref}); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if api.calls != 1 {
		t.Fatalf("API calls = %d, want 1", api.calls)
	}
}

func TestResolveConcurrentSharedResolver(t *testing.T) {
	api := &fakeUserAPI{users: map[string]confluence.User{
		"abc123": {UserKey: "abc123", DisplayName: "Jane Doe"},
	}}
	resolver := NewUserResolver(api)
	ref := UserRef{UserKey: "abc123", Placeholder: "@@u"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resolved, err := resolver.Resolve(context.Background(), "By @@u", []UserRef{ref})
			if err != nil {
				errs <- err
				return
			}
			if resolved != "By @Jane Doe" {
				errs <- errors.New("content = " + resolved)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent resolve: %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("API calls = %d, want 1", api.calls)
	}
}

func TestResolveKeepsPlaceholderOnFailure(t *testing.T) {
	api := &fakeUserAPI{users: map[string]confluence.User{}}
	resolver := NewUserResolver(api)
	ref := UserRef{Username: "ghost", Placeholder: "[~ghost](https://wiki.example.com/display/~ghost)"}
	content := "By " + ref.Placeholder

	resolved, err := resolver.Resolve(context.Background(), content, []UserRef{ref})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != content {
		t.Fatalf("content changed: %q", resolved)
	}
}
