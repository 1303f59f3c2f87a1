package pack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
	"github.com/ZebulonRouseFrantzich/seapack/internal/transaction"
)

// Stage is the last step a target reached.
type Stage string

const (
	StageOpen    Stage = "open"
	StageVerify  Stage = "verify"
	StageExtract Stage = "extract"
	StageStrip   Stage = "strip"
	StageInject  Stage = "inject"
	StageSign    Stage = "sign"
	StageDone    Stage = "done"
)

// JobResult is the outcome of packaging one target.
type JobResult struct {
	Target   platform.Target `yaml:"target"`
	Output   string          `yaml:"output"`
	Stage    Stage           `yaml:"stage"`
	Signed   bool            `yaml:"signed"`
	Bytes    int64           `yaml:"bytes,omitempty"`
	Duration time.Duration   `yaml:"duration"`
	Error    string          `yaml:"error,omitempty"`

	Err error `yaml:"-"`
}

// OK reports whether the target was packaged.
func (r JobResult) OK() bool {
	return r.Err == nil
}

// Report aggregates the results of a run in matrix order.
type Report struct {
	RunID    string        `yaml:"run_id"`
	App      string        `yaml:"app"`
	Version  string        `yaml:"node_version"`
	Started  time.Time     `yaml:"started"`
	Duration time.Duration `yaml:"duration"`
	Results  []JobResult   `yaml:"results"`
}

// Succeeded returns the results that completed.
func (r *Report) Succeeded() []JobResult {
	var out []JobResult
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results that did not complete.
func (r *Report) Failed() []JobResult {
	var out []JobResult
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Err returns nil when every target succeeded and otherwise one error per
// failed target.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %s failed: %w", res.Target, res.Stage, res.Err))
	}
	return errors.Join(errs...)
}

// WriteYAML serializes the report.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// Save writes the report as YAML to path atomically.
func (r *Report) Save(path string) error {
	var buf bytes.Buffer
	if err := r.WriteYAML(&buf); err != nil {
		return err
	}
	return transaction.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// Summary renders a short human readable overview.
func (r *Report) Summary() string {
	var sb strings.Builder
	for _, res := range r.Results {
		if res.OK() {
			signed := ""
			if res.Signed {
				signed = " (signed)"
			}
			fmt.Fprintf(&sb, "  ✓ %-14s %s%s\n", res.Target, res.Output, signed)
			continue
		}
		fmt.Fprintf(&sb, "  ✗ %-14s %s: %v\n", res.Target, res.Stage, res.Err)
	}
	fmt.Fprintf(&sb, "%d succeeded, %d failed in %s\n",
		len(r.Succeeded()), len(r.Failed()), r.Duration.Round(time.Millisecond))
	return sb.String()
}
