package exporter

import (
	"sort"
	"sync"
)

// RestrictedPage records one page the export could not read.
type RestrictedPage struct {
	PageID         string `json:"pageId"`
	Classification string `json:"classification"`
	Message        string `json:"message"`
}

// RestrictedSummary is the per-classification tally reported at the end of a
// run.
type RestrictedSummary struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
	Pages  []RestrictedPage
}

// restrictedHandler collects restricted-page outcomes across workers.
type restrictedHandler struct {
	mu    sync.Mutex
	pages []RestrictedPage
}

func newRestrictedHandler() *restrictedHandler {
	return &restrictedHandler{}
}

func (h *restrictedHandler) record(pageID, classification, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages = append(h.pages, RestrictedPage{
		PageID:         pageID,
		Classification: classification,
		Message:        message,
	})
}

func (h *restrictedHandler) summary() RestrictedSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	pages := make([]RestrictedPage, len(h.pages))
	copy(pages, h.pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageID < pages[j].PageID })

	counts := map[string]int{}
	for _, p := range pages {
		counts[p.Classification]++
	}
	return RestrictedSummary{Total: len(pages), Counts: counts, Pages: pages}
}

// Thresholds bound how much failure a run may absorb and still exit 0.
type Thresholds struct {
	MaxPageFailures                int
	MaxAttachmentFailures          int
	MaxAttachmentFailurePercentage float64
	AllowRestrictedPages           bool
}

// DefaultThresholds allows no page failures and up to 10% attachment loss.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxPageFailures:                0,
		MaxAttachmentFailures:          10,
		MaxAttachmentFailurePercentage: 10,
		AllowRestrictedPages:           true,
	}
}

// Exceeded reports whether the run's failure counts cross any threshold.
func (t Thresholds) Exceeded(pageFailures, restricted, attachmentFailures, attachmentTotal int) bool {
	effective := pageFailures
	if !t.AllowRestrictedPages {
		effective += restricted
	}
	if effective > t.MaxPageFailures {
		return true
	}
	if attachmentFailures > t.MaxAttachmentFailures {
		return true
	}
	if attachmentTotal > 0 && t.MaxAttachmentFailurePercentage > 0 {
		pct := float64(attachmentFailures) / float64(attachmentTotal) * 100
		if pct > t.MaxAttachmentFailurePercentage {
			return true
		}
	}
	return false
}
