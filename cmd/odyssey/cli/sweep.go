package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-sales/jobs"
)

// SweepOptions defines the flags of the sweep command.
type SweepOptions struct {
	Names      []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SweepSummary is the JSON output of the sweep command.
type SweepSummary struct {
	OK      bool          `json:"ok"`
	Results []SweepResult `json:"results"`
}

// SweepResult reports a single sweep run.
type SweepResult struct {
	Job      string `json:"job"`
	Affected int    `json:"affected"`
	Error    string `json:"error,omitempty"`
}

// SweepCLI runs maintenance sweeps inline, bypassing the queue.
type SweepCLI struct {
	sweeps map[string]jobs.SweepFunc
}

// NewSweepCLI registers the available sweeps by task type.
func NewSweepCLI(sweeps map[string]jobs.SweepFunc) *SweepCLI {
	return &SweepCLI{sweeps: sweeps}
}

// Names lists the registered sweeps in order.
func (c *SweepCLI) Names() []string {
	names := make([]string, 0, len(c.sweeps))
	for name := range c.sweeps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCommand executes the named sweeps, or all of them when none is given.
// It exits 1 on usage errors and 10 when a sweep failed.
func (c *SweepCLI) RunCommand(ctx context.Context, opts SweepOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	names := opts.Names
	if len(names) == 0 {
		names = c.Names()
	}
	for _, name := range names {
		if _, ok := c.sweeps[name]; !ok {
			_, _ = fmt.Fprintf(opts.Stderr, "sweep: unknown job %q (available: %s)\n", name, strings.Join(c.Names(), ", "))
			return 1
		}
	}

	summary := SweepSummary{OK: true, Results: make([]SweepResult, 0, len(names))}
	for _, name := range names {
		n, err := c.sweeps[name](ctx)
		res := SweepResult{Job: name, Affected: n}
		if err != nil {
			res.Error = err.Error()
			summary.OK = false
		}
		summary.Results = append(summary.Results, res)
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "sweep: encode json: %v\n", err)
			return 1
		}
	} else {
		for _, res := range summary.Results {
			if res.Error != "" {
				_, _ = fmt.Fprintf(opts.Stdout, "%-32s FAILED  %s\n", res.Job, res.Error)
				continue
			}
			_, _ = fmt.Fprintf(opts.Stdout, "%-32s ok      %d affected\n", res.Job, res.Affected)
		}
	}
	if !summary.OK {
		return 10
	}
	return 0
}
