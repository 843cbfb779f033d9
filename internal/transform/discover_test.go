package transform

import "testing"

func TestDiscoverChildrenMacroDefaultsToOwnPage(t *testing.T) {
	body := `<ac:structured-macro ac:name="children"></ac:structured-macro>`
	requests, err := Discover(body, "100")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(requests))
	}
	if requests[0].Kind != DiscoverChildren || requests[0].PageID != "100" {
		t.Fatalf("request = %+v", requests[0])
	}
}

func TestDiscoverChildrenMacroWithPageParameter(t *testing.T) {
	body := `<ac:structured-macro ac:name="children-display">` +
		`<ac:parameter ac:name="page"><ri:page ri:content-title="Other Page"/></ac:parameter>` +
		`</ac:structured-macro>`
	requests, err := Discover(body, "100")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(requests))
	}
	if requests[0].Kind != DiscoverChildren || requests[0].Title != "Other Page" || requests[0].PageID != "" {
		t.Fatalf("request = %+v", requests[0])
	}
}

func TestDiscoverContentByLabelSplitsLabels(t *testing.T) {
	body := `<ac:structured-macro ac:name="content-by-label">` +
		`<ac:parameter ac:name="labels">+howto, runbook</ac:parameter>` +
		`</ac:structured-macro>`
	requests, err := Discover(body, "100")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if requests[0].Label != "howto" || requests[1].Label != "runbook" {
		t.Fatalf("labels = %q, %q", requests[0].Label, requests[1].Label)
	}
}

func TestDiscoverDeduplicatesRequests(t *testing.T) {
	body := `<ac:structured-macro ac:name="children"></ac:structured-macro>` +
		`<ac:structured-macro ac:name="children"></ac:structured-macro>`
	requests, err := Discover(body, "100")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(requests))
	}
}

func TestDiscoverIgnoresUnrelatedMacros(t *testing.T) {
	body := `<ac:structured-macro ac:name="info"><ac:rich-text-body><p>x</p></ac:rich-text-body></ac:structured-macro>`
	requests, err := Discover(body, "100")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("requests = %d, want 0", len(requests))
	}
}
