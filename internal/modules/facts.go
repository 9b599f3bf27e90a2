package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kriansa/zosmod/internal/ansible"
	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/log"
)

const (
	factPrefix = "zos_"

	subsetAll = "all"
	subsetMin = "min"

	defaultGatherTimeout = 10
)

// FactsParams are the zos_gather_facts arguments
type FactsParams struct {
	GatherSubset  ansible.StringList `json:"gather_subset"`
	Filter        ansible.StringList `json:"filter"`
	GatherTimeout *ansible.Int       `json:"gather_timeout"`
}

// FactsResult is the zos_gather_facts result
type FactsResult struct {
	AnsibleFacts map[string]any `json:"ansible_facts"`
	Changed      bool           `json:"changed"`
	Warnings     []string       `json:"warnings,omitempty"`
}

// collector gathers one group of facts. Keys are returned without the
// zos_ prefix.
type collector struct {
	name    string
	collect func(ctx context.Context) (map[string]any, error)
}

// FactsModule implements zos_gather_facts
type FactsModule struct {
	host       host.Host
	collectors []collector
}

// NewFactsModule creates the zos_gather_facts module. zoauBin is the
// directory holding the ZOAU tools; empty means PATH.
func NewFactsModule(h host.Host, zoauBin string) *FactsModule {
	m := &FactsModule{host: h}
	tool := func(name string) string {
		if zoauBin == "" {
			return name
		}
		return path.Join(zoauBin, name)
	}

	m.collectors = []collector{
		{name: "platform", collect: m.platform},
		{name: "symbols", collect: func(ctx context.Context) (map[string]any, error) {
			return m.symbols(ctx, tool("opercmd"))
		}},
		{name: "zinfo", collect: func(ctx context.Context) (map[string]any, error) {
			return m.zinfo(ctx, tool("zinfo"))
		}},
	}
	return m
}

// resolveSubset turns gather_subset into the set of collectors to run. The
// min subset is always gathered.
func (m *FactsModule) resolveSubset(subset []string) (map[string]bool, error) {
	known := make([]string, 0, len(m.collectors))
	for _, c := range m.collectors {
		known = append(known, c.name)
	}

	if len(subset) == 0 {
		subset = []string{subsetAll}
	}

	include := map[string]bool{}
	exclude := map[string]bool{}
	for _, s := range subset {
		s = strings.ToLower(strings.TrimSpace(s))
		name, negated := strings.CutPrefix(s, "!")

		switch {
		case name == subsetAll:
			for _, k := range known {
				if negated {
					exclude[k] = true
				} else {
					include[k] = true
				}
			}
		case name == subsetMin:
			if !negated {
				include["platform"] = true
			}
		case slices.Contains(known, name):
			if negated {
				exclude[name] = true
			} else {
				include[name] = true
			}
		default:
			return nil, ansible.ParamErrorf("gather_subset: unknown subset %q, expected one of all, min, %s", s, strings.Join(known, ", "))
		}
	}

	// an exclusion-only subset starts from everything
	if len(include) == 0 {
		for _, k := range known {
			include[k] = true
		}
	}
	for k := range exclude {
		delete(include, k)
	}
	include["platform"] = true

	return include, nil
}

// Run gathers facts. Collectors run concurrently, each bounded by the
// gather timeout; a failing collector becomes a warning. Cancelling ctx
// aborts the whole run.
func (m *FactsModule) Run(ctx context.Context, _ *ansible.Common, p *FactsParams) (*FactsResult, error) {
	res := &FactsResult{AnsibleFacts: map[string]any{}}

	selected, err := m.resolveSubset(p.GatherSubset)
	if err != nil {
		return res, err
	}

	for _, f := range p.Filter {
		if _, err := path.Match(f, ""); err != nil {
			return res, ansible.ParamErrorf("filter: invalid pattern %q: %v", f, err)
		}
	}

	timeout := defaultGatherTimeout
	if p.GatherTimeout != nil {
		timeout = int(*p.GatherTimeout)
	}
	if timeout <= 0 {
		return res, ansible.ParamErrorf("gather_timeout must be greater than zero")
	}

	var (
		mu       sync.Mutex
		warnings []string
	)

	var g errgroup.Group
	for _, c := range m.collectors {
		if !selected[c.name] {
			continue
		}

		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
			defer cancel()

			facts, err := c.collect(cctx)
			if err != nil && ctx.Err() != nil {
				return fmt.Errorf("%s facts: %w", c.name, ctx.Err())
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("fact collector failed", "collector", c.name, "error", err)
				warnings = append(warnings, fmt.Sprintf("%s facts could not be gathered: %v", c.name, err))
				return nil
			}
			for k, v := range facts {
				key := factPrefix + k
				if matchesFilter(p.Filter, key) {
					res.AnsibleFacts[key] = v
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("gather facts: %w", err)
	}

	sort.Strings(warnings)
	res.Warnings = warnings
	return res, nil
}

func matchesFilter(filters []string, key string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if ok, _ := path.Match(f, key); ok {
			return true
		}
	}
	return false
}

// platform gathers the system identification from uname
func (m *FactsModule) platform(ctx context.Context) (map[string]any, error) {
	res, err := host.Check(m.host.Run(ctx, "uname", "-s", "-n", "-r", "-v", "-m"))
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(res.Stdout)
	if len(fields) < 5 {
		return nil, fmt.Errorf("unexpected uname output %q", strings.TrimSpace(res.Stdout))
	}

	return map[string]any{
		"system":   fields[0],
		"nodename": fields[1],
		"release":  fields[2],
		"version":  fields[3],
		"machine":  fields[4],
	}, nil
}

// symbolLine matches one static system symbol in D SYMBOLS output:
//
//	&SYSNAME.         = "SYS1"
var symbolLine = regexp.MustCompile(`&([A-Z0-9@#$_]+)\.\s*=\s*"([^"]*)"`)

// symbols gathers the static system symbols through the operator command
func (m *FactsModule) symbols(ctx context.Context, opercmd string) (map[string]any, error) {
	res, err := host.Check(m.host.Run(ctx, opercmd, "D SYMBOLS"))
	if err != nil {
		return nil, err
	}

	symbols := map[string]string{}
	for _, match := range symbolLine.FindAllStringSubmatch(res.Stdout, -1) {
		symbols[match[1]] = match[2]
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no system symbols in D SYMBOLS output")
	}

	return map[string]any{"symbols": symbols}, nil
}

// zinfo gathers IPL and system information as JSON from zinfo
func (m *FactsModule) zinfo(ctx context.Context, zinfo string) (map[string]any, error) {
	res, err := host.Check(m.host.Run(ctx, zinfo, "-j", "-t", "ipl", "-t", "exp"))
	if err != nil {
		return nil, err
	}

	var out struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return nil, fmt.Errorf("decode zinfo output: %w", err)
	}

	// each subset holds a flat map of facts
	facts := map[string]any{}
	for _, v := range out.Data {
		group, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for k, fact := range group {
			facts[strings.ToLower(k)] = fact
		}
	}
	return facts, nil
}
