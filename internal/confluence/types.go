package confluence

import (
	"context"
	"time"
)

// Ancestor is a page reference in a page's ancestor chain, root first.
type Ancestor struct {
	ID    string
	Title string
}

// Page is a Confluence page as consumed by the export pipeline. BodyStorage
// holds the storage-format XHTML.
type Page struct {
	ID           string
	SpaceKey     string
	Title        string
	BodyStorage  string
	Version      int
	ParentID     string
	Ancestors    []Ancestor
	ModifiedDate time.Time
	WebURL       string
}

// PageRef is a lightweight page reference from listings and search.
type PageRef struct {
	ID       string
	Title    string
	SpaceKey string
}

// PageList is one page of a child-page listing.
type PageList struct {
	Pages      []PageRef
	NextCursor string
}

// Attachment describes one attachment of a page.
type Attachment struct {
	ID          string
	PageID      string
	Filename    string
	MediaType   string
	FileSize    int64
	DownloadURL string
}

// AttachmentList is one page of an attachment listing.
type AttachmentList struct {
	Attachments []Attachment
	NextCursor  string
}

// User is a Confluence user looked up by key or username.
type User struct {
	UserKey     string
	Username    string
	DisplayName string
	Email       string
}

// API is the adapter contract the export pipeline depends on. All methods may
// fail with a typed *APIError carrying the HTTP status.
type API interface {
	GetPageWithBody(ctx context.Context, pageID string) (Page, error)
	GetChildPages(ctx context.Context, pageID string, cursor string) (PageList, error)
	ListAttachments(ctx context.Context, pageID string, cursor string) (AttachmentList, error)
	DownloadAttachment(ctx context.Context, downloadURL string) ([]byte, error)
	GetUser(ctx context.Context, userKey string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	SearchPages(ctx context.Context, cql string, pageSize int) ([]PageRef, error)
}
