package confluence

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:  server.URL,
		Username: "exporter",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresCoreConfig(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("NewClient() with empty config expected error")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://wiki", Username: "u"}); err == nil {
		t.Fatal("NewClient() without password expected error")
	}
}

func TestGetPageWithBodyMapsDTO(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/content/100" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "exporter" || pass != "secret" {
			t.Fatalf("auth = %q/%q ok=%v", user, pass, ok)
		}
		if got := r.URL.Query().Get("expand"); got != "body.storage,version,ancestors,space,history.lastUpdated" {
			t.Fatalf("expand = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "100",
			"title": "Hello",
			"space": {"key": "TEST"},
			"version": {"number": 4, "when": "2026-01-15T09:30:00Z"},
			"body": {"storage": {"value": "<p>Hi</p>"}},
			"ancestors": [{"id": "1", "title": "Root"}, {"id": "50", "title": "Parent"}]
		}`)
	})

	page, err := client.GetPageWithBody(context.Background(), "100")
	if err != nil {
		t.Fatalf("GetPageWithBody: %v", err)
	}
	if page.ID != "100" || page.Title != "Hello" || page.SpaceKey != "TEST" {
		t.Fatalf("page = %+v", page)
	}
	if page.BodyStorage != "<p>Hi</p>" || page.Version != 4 {
		t.Fatalf("body/version = %q/%d", page.BodyStorage, page.Version)
	}
	if page.ParentID != "50" {
		t.Fatalf("parent = %q, want deepest ancestor", page.ParentID)
	}
	if len(page.Ancestors) != 2 || page.Ancestors[0].ID != "1" {
		t.Fatalf("ancestors = %+v", page.Ancestors)
	}
	if page.ModifiedDate.IsZero() {
		t.Fatal("modified date not parsed")
	}
}

func TestGetPageWithBodyNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no content"}`, http.StatusNotFound)
	})

	_, err := client.GetPageWithBody(context.Background(), "404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusForbidden)
	})

	_, err := client.GetPageWithBody(context.Background(), "200")
	if StatusOf(err) != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", StatusOf(err))
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "permission denied" {
		t.Fatalf("err = %v", err)
	}
}

func TestRateLimitParsesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetPageWithBody(context.Background(), "100")
	if StatusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", StatusOf(err))
	}
	if got := RetryAfterOf(err); got != 7*time.Second {
		t.Fatalf("retry after = %s, want 7s", got)
	}
}

func TestGetChildPagesPaginates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/content/100/child/page" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("start") == "" {
			io.WriteString(w, `{
				"results": [{"id": "101", "title": "A", "space": {"key": "TEST"}}],
				"start": 0, "limit": 1, "size": 1,
				"_links": {"next": "/rest/api/content/100/child/page?start=1"}
			}`)
			return
		}
		io.WriteString(w, `{"results": [{"id": "102", "title": "B", "space": {"key": "TEST"}}], "start": 1, "limit": 50, "size": 1}`)
	})

	first, err := client.GetChildPages(context.Background(), "100", "")
	if err != nil {
		t.Fatalf("GetChildPages: %v", err)
	}
	if len(first.Pages) != 1 || first.Pages[0].ID != "101" {
		t.Fatalf("first page = %+v", first.Pages)
	}
	if first.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	second, err := client.GetChildPages(context.Background(), "100", first.NextCursor)
	if err != nil {
		t.Fatalf("GetChildPages page 2: %v", err)
	}
	if len(second.Pages) != 1 || second.Pages[0].ID != "102" {
		t.Fatalf("second page = %+v", second.Pages)
	}
	if second.NextCursor != "" {
		t.Fatalf("cursor after last page = %q", second.NextCursor)
	}
}

func TestSearchPagesFollowsPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/content/search" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("cql"); got == "" {
			t.Fatal("cql query missing")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("start") {
		case "0":
			io.WriteString(w, `{"results": [{"id": "1", "title": "A"}, {"id": "2", "title": "B"}], "start": 0, "limit": 2, "size": 2}`)
		default:
			io.WriteString(w, `{"results": [{"id": "3", "title": "C"}], "start": 2, "limit": 2, "size": 1}`)
		}
	})

	refs, err := client.SearchPages(context.Background(), `space = "TEST" AND type = page`, 2)
	if err != nil {
		t.Fatalf("SearchPages: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("refs = %d, want 3", len(refs))
	}
	if refs[2].ID != "3" {
		t.Fatalf("last ref = %+v", refs[2])
	}
}

func TestListAttachmentsResolvesDownloadURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"results": [{
				"id": "att1", "title": "diagram.png",
				"metadata": {"mediaType": "image/png"},
				"extensions": {"fileSize": 2048},
				"_links": {"download": "/download/attachments/100/diagram.png"}
			}],
			"start": 0, "limit": 50, "size": 1
		}`)
	})

	list, err := client.ListAttachments(context.Background(), "100", "")
	if err != nil {
		t.Fatalf("ListAttachments: %v", err)
	}
	if len(list.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(list.Attachments))
	}
	att := list.Attachments[0]
	if att.Filename != "diagram.png" || att.PageID != "100" || att.FileSize != 2048 {
		t.Fatalf("attachment = %+v", att)
	}
	if att.DownloadURL == "/download/attachments/100/diagram.png" {
		t.Fatal("download URL not resolved against the base URL")
	}
}

func TestDownloadAttachmentReturnsBytes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download/attachments/100/diagram.png" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	data, err := client.DownloadAttachment(context.Background(), "/download/attachments/100/diagram.png")
	if err != nil {
		t.Fatalf("DownloadAttachment: %v", err)
	}
	if len(data) != 4 || data[1] != 'P' {
		t.Fatalf("data = %v", data)
	}
}

func TestGetUserByKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/user" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "abc123" {
			t.Fatalf("key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"userKey": "abc123", "username": "jdoe", "displayName": "Jane Doe"}`)
	})

	user, err := client.GetUser(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.DisplayName != "Jane Doe" || user.Username != "jdoe" {
		t.Fatalf("user = %+v", user)
	}
}
