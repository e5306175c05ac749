// Package report renders run results and saved state for humans and tools.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/bisector/pkg/checkpoint"
	"github.com/Sumatoshi-tech/bisector/pkg/search"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatYAML}
}

// ResultDocument is the machine-readable form of a search.Result.
type ResultDocument struct {
	RunID               string   `json:"run_id"               yaml:"run_id"`
	Completed           bool     `json:"completed"            yaml:"completed"`
	Reason              string   `json:"reason"               yaml:"reason"`
	Description         string   `json:"description"          yaml:"description"`
	FoundItems          []string `json:"found_items"          yaml:"found_items"`
	Iterations          int      `json:"iterations"           yaml:"iterations"`
	PruneCycles         int      `json:"prune_cycles"         yaml:"prune_cycles"`
	MonotonicViolations int      `json:"monotonic_violations" yaml:"monotonic_violations"`
	ElapsedSeconds      float64  `json:"elapsed_seconds"      yaml:"elapsed_seconds"`
	Resumed             bool     `json:"resumed"              yaml:"resumed"`
}

// NewResultDocument converts res.
func NewResultDocument(res search.Result) ResultDocument {
	found := res.FoundItems
	if found == nil {
		found = []string{}
	}

	return ResultDocument{
		RunID:               res.RunID,
		Completed:           res.Reason.Completed(),
		Reason:              string(res.Reason),
		Description:         res.Reason.Description(),
		FoundItems:          found,
		Iterations:          res.Iterations,
		PruneCycles:         res.PruneCycles,
		MonotonicViolations: res.MonotonicViolations,
		ElapsedSeconds:      res.Elapsed.Seconds(),
		Resumed:             res.Resumed,
	}
}

// StateDocument is the machine-readable summary of a saved snapshot.
type StateDocument struct {
	Path            string   `json:"path"              yaml:"path"`
	RunID           string   `json:"run_id"            yaml:"run_id"`
	Version         int      `json:"version"           yaml:"version"`
	Pass            int      `json:"pass"              yaml:"pass"`
	Items           []string `json:"items"             yaml:"items"`
	KnownGood       int      `json:"known_good"        yaml:"known_good"`
	FoundItems      []string `json:"found_items"       yaml:"found_items"`
	WindowLow       int      `json:"window_low"        yaml:"window_low"`
	WindowHigh      int      `json:"window_high"       yaml:"window_high"`
	Candidate       string   `json:"candidate"         yaml:"candidate"`
	SearchCycles    int      `json:"search_cycles"     yaml:"search_cycles"`
	TotalIterations int      `json:"total_iterations"  yaml:"total_iterations"`
	Verified        bool     `json:"verified"          yaml:"verified"`
	SavedAt         string   `json:"saved_at"          yaml:"saved_at"`
	ElapsedSeconds  float64  `json:"elapsed_seconds"   yaml:"elapsed_seconds"`
}

// NewStateDocument summarizes snap as read from path. Elapsed time is
// measured up to the moment the snapshot was saved.
func NewStateDocument(path string, snap *checkpoint.Snapshot) StateDocument {
	found := snap.FoundItems
	if found == nil {
		found = []string{}
	}

	candidate := ""
	if snap.Window.High < len(snap.AllItems) {
		candidate = snap.AllItems[snap.Window.Mid()]
	}

	return StateDocument{
		Path:            path,
		RunID:           snap.RunID,
		Version:         snap.Version,
		Pass:            snap.PruneCycles + 1,
		Items:           snap.AllItems,
		KnownGood:       len(snap.KnownGood),
		FoundItems:      found,
		WindowLow:       snap.Window.Low,
		WindowHigh:      snap.Window.High,
		Candidate:       candidate,
		SearchCycles:    snap.SearchCycles,
		TotalIterations: snap.TotalIterations,
		Verified:        snap.Verified,
		SavedAt:         snap.SavedAt.UTC().Format(time.RFC3339),
		ElapsedSeconds:  snap.Elapsed(snap.SavedAt).Seconds(),
	}
}

// WriteResult renders res to w in format.
func WriteResult(w io.Writer, format string, res search.Result) error {
	switch format {
	case FormatText, "":
		return writeResultText(w, res)
	case FormatJSON:
		return writeJSON(w, NewResultDocument(res))
	case FormatYAML:
		return writeYAML(w, NewResultDocument(res))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteState renders the snapshot stored at path to w in format. now anchors
// relative times in the text form.
func WriteState(w io.Writer, format, path string, snap *checkpoint.Snapshot, now time.Time) error {
	doc := NewStateDocument(path, snap)

	switch format {
	case FormatText, "":
		return writeStateText(w, doc, snap.SavedAt, now)
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatYAML:
		return writeYAML(w, doc)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	return nil
}
