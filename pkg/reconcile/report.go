package reconcile

import (
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
)

// Item is one package's reconciliation result.
type Item struct {
	Package       string `json:"package_name"`
	Pinned        string `json:"pinned_version,omitempty"`
	Published     string `json:"published_version,omitempty"`
	BuiltCommit   string `json:"built_commit,omitempty"`
	CurrentCommit string `json:"current_commit,omitempty"`
	Action        string `json:"action"`
	Detail        string `json:"detail,omitempty"`
}

// Summary counts the sweep's results by action.
type Summary struct {
	TotalPackages int            `json:"total_packages"`
	WithIssues    int            `json:"packages_with_issues"`
	ByAction      map[string]int `json:"by_action"`
}

// Report is the sweep output: everything observed, plus the subset that
// needs attention, in a shape meant for both humans and the fix command.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     Summary   `json:"summary"`
	Issues      []Item    `json:"issues"`
	Packages    []Item    `json:"all_packages"`
}

func newReport() *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Summary:     Summary{ByAction: map[string]int{}},
	}
}

func (r *Report) add(item Item) {
	r.Packages = append(r.Packages, item)
	r.Summary.TotalPackages++
	r.Summary.ByAction[item.Action]++
	if item.Action != ActionNone.String() {
		r.Issues = append(r.Issues, item)
		r.Summary.WithIssues++
	}
}

func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile writes the report as JSON to path.
func (r *Report) WriteFile(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	return errors.Wrap(ioutil.WriteFile(path, data, 0644), "writing report")
}

// LoadReport reads a report previously written by WriteFile.
func LoadReport(path string) (*Report, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading report")
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrap(err, "parsing report")
	}
	return &report, nil
}
