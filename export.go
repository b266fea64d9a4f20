package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dumper writes captured events to indented JSON files for offline
// diagnosis. Dump files are the only artifact the engine produces beyond
// pass/fail; persisting or reporting them further is the caller's concern.
type Dumper struct {
	// Dir is the output directory, created on first use.
	Dir string
}

// NewDumper creates a dumper writing into dir.
func NewDumper(dir string) *Dumper {
	return &Dumper{Dir: dir}
}

// Dump writes the given events as one JSON file named
// tracking_<label>_<goodscode>_<timestamp>.json and returns its path.
// An empty event slice still writes a file, so a missing beacon leaves a
// visible trace.
func (d *Dumper) Dump(label, goodsCode string, events []*CapturedEvent) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dump directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("tracking_%s_%s_%s.json", label, goodsCode, timestamp)
	path := filepath.Join(d.Dir, name)

	if events == nil {
		events = []*CapturedEvent{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write dump file: %w", err)
	}
	return path, nil
}

// DumpSession writes one file per classified kind plus an "all" file for a
// session's store, scoped to the given goods code where the kind supports
// it, and returns the written paths.
func (d *Dumper) DumpSession(store *EventStore, goodsCode string) ([]string, error) {
	dumps := []struct {
		label  string
		events []*CapturedEvent
	}{
		{"pv", store.FindKind(EventPageView)},
		{"pdp_pv", store.FindByGoodsCode(EventProductDetailView, goodsCode)},
		{"module_exposure", store.FindKind(EventModuleExposure)},
		{"product_exposure", store.FindByGoodsCode(EventProductExposure, goodsCode)},
		{"product_click", store.FindByGoodsCode(EventProductClick, goodsCode)},
		{"product_a2c_click", store.FindByGoodsCode(EventProductAddToCartClick, goodsCode)},
		{"all", store.All()},
	}

	paths := make([]string, 0, len(dumps))
	for _, dump := range dumps {
		path, err := d.Dump(dump.label, goodsCode, dump.events)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
