package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	tracking "github.com/mrt1847-test/user-tracking-automation"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { archive.Close() })
	return archive
}

func archiveTestEvent(t *testing.T, archive *Archive, id string, kind tracking.EventKind, url, body string) {
	t.Helper()
	decoded, err := tracking.Decode(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	event := &tracking.CapturedEvent{
		ID:         id,
		Kind:       kind,
		URL:        url,
		Method:     "POST",
		PageID:     "tab-1",
		RawBody:    body,
		Decoded:    decoded,
		CapturedAt: time.Now(),
	}
	if err := archive.Archive(event); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
}

func TestArchiveAndCount(t *testing.T) {
	archive := openTestArchive(t)

	archiveTestEvent(t, archive, "e1", tracking.EventProductClick,
		"https://aplus.gmarket.co.kr/log/product.click", "_p_prod=111")
	archiveTestEvent(t, archive, "e2", tracking.EventProductClick,
		"https://aplus.gmarket.co.kr/log/product.click", "_p_prod=222")
	archiveTestEvent(t, archive, "e3", tracking.EventPageView,
		"https://aplus.gmarket.co.kr/bacon.gif", "pageId=HOME")

	counts, err := archive.CountByKind()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts[string(tracking.EventProductClick)] != 2 {
		t.Errorf("expected 2 clicks, got %d", counts[string(tracking.EventProductClick)])
	}
	if counts[string(tracking.EventPageView)] != 1 {
		t.Errorf("expected 1 page view, got %d", counts[string(tracking.EventPageView)])
	}
}

func TestURLsByKind(t *testing.T) {
	archive := openTestArchive(t)

	archiveTestEvent(t, archive, "e1", tracking.EventPageView,
		"https://aplus.gmarket.co.kr/bacon.gif?seq=1", "pageId=HOME")
	archiveTestEvent(t, archive, "e2", tracking.EventPageView,
		"https://aplus.gmarket.co.kr/bacon.gif?seq=2", "pageId=SRP")

	urls, err := archive.URLsByKind(string(tracking.EventPageView))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}

	if urls, err = archive.URLsByKind(string(tracking.EventClick)); err != nil {
		t.Fatalf("query failed: %v", err)
	} else if len(urls) != 0 {
		t.Errorf("expected no urls for unarchived kind, got %v", urls)
	}
}

func TestArchiveRejectsInvalidEvents(t *testing.T) {
	archive := openTestArchive(t)

	if err := archive.Archive(nil); err == nil {
		t.Error("expected error for nil event")
	}
	if err := archive.Archive(&tracking.CapturedEvent{}); err == nil {
		t.Error("expected error for event without id")
	}
}

func TestArchiveEmptyPayload(t *testing.T) {
	archive := openTestArchive(t)

	// Empty bodies decode to a nil tree; the archive stores them as JSON
	// null rather than refusing the event.
	archiveTestEvent(t, archive, "e1", tracking.EventUnknown,
		"https://aplus.gmarket.co.kr/log/heartbeat", "")

	counts, err := archive.CountByKind()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts[string(tracking.EventUnknown)] != 1 {
		t.Errorf("expected empty-payload event archived, got %v", counts)
	}
}

var _ tracking.EventSink = (*Archive)(nil)
