package modules

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kriansa/zosmod/internal/ansible"
	"github.com/kriansa/zosmod/internal/log"
	"github.com/kriansa/zosmod/internal/validation"
	"github.com/kriansa/zosmod/internal/zoau"
)

// Data set types reported by zos_find
const (
	TypeNonVSAM = "NONVSAM"
	TypeVSAM    = "VSAM"
)

// Age stamps selecting which date the age filter compares
const (
	AgeStampCreated    = "c_date"
	AgeStampReferenced = "r_date"
)

// memberSearchLimit bounds the PDS member listings running at once
const memberSearchLimit = 4

// FindParams are the zos_find arguments
type FindParams struct {
	Patterns ansible.StringList `json:"patterns"`
	Excludes ansible.StringList `json:"excludes"`
	Exclude  ansible.StringList `json:"exclude"`
	Contains string             `json:"contains"`
	Age      string             `json:"age"`
	AgeStamp string             `json:"age_stamp"`
	Size     string             `json:"size"`
	PDSPaths ansible.StringList `json:"pds_paths"`
	Paths    ansible.StringList `json:"paths"`
	FileType string             `json:"file_type"`
	Volumes  ansible.StringList `json:"volumes"`
	Volume   ansible.StringList `json:"volume"`
}

// FoundDataSet is one match of zos_find
type FoundDataSet struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Volume  string   `json:"volume,omitempty"`
	Members []string `json:"members,omitempty"`
}

// FindResult is the zos_find result
type FindResult struct {
	DataSets []FoundDataSet `json:"data_sets"`
	Matched  int            `json:"matched"`
	Examined int            `json:"examined"`
	Changed  bool           `json:"changed"`
}

// FindModule implements zos_find
type FindModule struct {
	zoau *zoau.Client
	now  func() time.Time
}

// NewFindModule creates the zos_find module
func NewFindModule(z *zoau.Client) *FindModule {
	return &FindModule{
		zoau: z,
		now:  time.Now,
	}
}

// findQuery is the validated form of FindParams
type findQuery struct {
	patterns []string
	excludes []*regexp.Regexp
	contains string
	age      *threshold
	ageStamp string
	size     *threshold
	pdsPaths []string
	fileType string
	volumes  []string
}

func (p *FindParams) query() (*findQuery, error) {
	q := &findQuery{
		contains: p.Contains,
		ageStamp: strings.ToLower(p.AgeStamp),
		fileType: strings.ToUpper(p.FileType),
	}

	for _, pat := range p.Patterns {
		if pat = strings.TrimSpace(pat); pat != "" {
			q.patterns = append(q.patterns, pat)
		}
	}
	if len(q.patterns) == 0 {
		return nil, ansible.ParamErrorf("patterns is required")
	}

	for _, ex := range append(slices.Clone(p.Excludes), p.Exclude...) {
		re, err := regexp.Compile("(?i)" + ex)
		if err != nil {
			return nil, ansible.ParamErrorf("excludes: invalid pattern %q: %v", ex, err)
		}
		q.excludes = append(q.excludes, re)
	}

	if p.Age != "" {
		age, err := parseAge(p.Age)
		if err != nil {
			return nil, ansible.ParamErrorf("age: %v", err)
		}
		q.age = &age
	}
	if q.ageStamp == "" {
		q.ageStamp = AgeStampReferenced
	}
	if q.ageStamp != AgeStampCreated && q.ageStamp != AgeStampReferenced {
		return nil, ansible.ParamErrorf("age_stamp must be c_date or r_date, got %q", p.AgeStamp)
	}

	if p.Size != "" {
		size, err := parseSize(p.Size)
		if err != nil {
			return nil, ansible.ParamErrorf("size: %v", err)
		}
		q.size = &size
	}

	for _, pds := range append(slices.Clone(p.PDSPaths), p.Paths...) {
		pds = strings.ToUpper(strings.TrimSpace(pds))
		if err := validation.ValidateDataSetName(pds); err != nil {
			return nil, ansible.ParamErrorf("pds_paths: %v", err)
		}
		q.pdsPaths = append(q.pdsPaths, pds)
	}

	if q.fileType == "" {
		q.fileType = TypeNonVSAM
	}
	if q.fileType != TypeNonVSAM && q.fileType != TypeVSAM {
		return nil, ansible.ParamErrorf("file_type must be NONVSAM or VSAM, got %q", p.FileType)
	}
	if len(q.pdsPaths) > 0 && q.fileType == TypeVSAM {
		return nil, ansible.ParamErrorf("pds_paths cannot be used with file_type VSAM")
	}

	for _, v := range append(slices.Clone(p.Volumes), p.Volume...) {
		q.volumes = append(q.volumes, strings.ToUpper(v))
	}

	return q, nil
}

// dataSetPatterns returns the patterns as data set name patterns
func (q *findQuery) dataSetPatterns() []string {
	out := make([]string, len(q.patterns))
	for i, p := range q.patterns {
		out[i] = strings.ToUpper(p)
	}
	return out
}

func (q *findQuery) excluded(name string) bool {
	for _, re := range q.excludes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Run searches for data sets or PDS members
func (f *FindModule) Run(ctx context.Context, _ *ansible.Common, p *FindParams) (*FindResult, error) {
	res := &FindResult{DataSets: []FoundDataSet{}}

	q, err := p.query()
	if err != nil {
		return res, err
	}

	log.Debug("running zos_find", "patterns", q.patterns, "pds_paths", q.pdsPaths)

	if len(q.pdsPaths) > 0 {
		err = f.findMembers(ctx, q, res)
	} else {
		err = f.findDataSets(ctx, q, res)
	}
	if err != nil {
		return res, err
	}

	res.Matched = len(res.DataSets)
	log.Info("zos_find finished", "matched", res.Matched, "examined", res.Examined)
	return res, nil
}

// findDataSets lists data sets matching the patterns and applies the filters
func (f *FindModule) findDataSets(ctx context.Context, q *findQuery, res *FindResult) error {
	patterns := q.dataSetPatterns()
	sets, err := f.zoau.List(ctx, patterns, zoau.ListOptions{
		Details: true,
		Sizes:   q.size != nil,
		Dates:   q.age != nil,
	})
	if err != nil {
		return err
	}

	var content map[string][]string
	if q.contains != "" {
		content, err = f.grep(ctx, patterns, q.contains)
		if err != nil {
			return err
		}
	}

	now := f.now()
	for _, ds := range sets {
		res.Examined++

		if ds.IsVSAM() != (q.fileType == TypeVSAM) {
			continue
		}
		if q.excluded(ds.Name) {
			continue
		}
		if len(q.volumes) > 0 && !slices.Contains(q.volumes, strings.ToUpper(ds.Volume)) {
			continue
		}
		if q.size != nil && !q.size.match(ds.Size) {
			continue
		}
		if q.age != nil && !q.ageMatches(ds, now) {
			continue
		}

		found := FoundDataSet{
			Name:   ds.Name,
			Type:   q.fileType,
			Volume: ds.Volume,
		}
		if content != nil {
			members, ok := content[strings.ToUpper(ds.Name)]
			if !ok {
				continue
			}
			found.Members = members
		}

		res.DataSets = append(res.DataSets, found)
	}

	return nil
}

func (q *findQuery) ageMatches(ds zoau.DataSet, now time.Time) bool {
	stamp := ds.Referenced
	if q.ageStamp == AgeStampCreated {
		stamp = ds.Created
	}
	if stamp.IsZero() {
		return false
	}

	age := now.Sub(stamp)
	if age < 0 {
		age = 0
	}
	return q.age.match(uint64(age / time.Second))
}

// grep maps each data set containing text to the members that contain it.
// Sequential data sets map to an empty member list.
func (f *FindModule) grep(ctx context.Context, patterns []string, text string) (map[string][]string, error) {
	names, err := f.zoau.Grep(ctx, patterns, text, false)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string)
	for _, name := range names {
		dsn, member, ok := validation.SplitMember(name)
		dsn = strings.ToUpper(dsn)
		if !ok {
			if _, seen := out[dsn]; !seen {
				out[dsn] = nil
			}
			continue
		}
		out[dsn] = append(out[dsn], strings.ToUpper(member))
	}
	return out, nil
}

// findMembers searches the members of each PDS for names matching the
// patterns, which are regular expressions in this mode
func (f *FindModule) findMembers(ctx context.Context, q *findQuery, res *FindResult) error {
	var matchers []*regexp.Regexp
	for _, pat := range q.patterns {
		re, err := regexp.Compile("(?i)^(?:" + pat + ")$")
		if err != nil {
			return ansible.ParamErrorf("patterns: invalid member pattern %q: %v", pat, err)
		}
		matchers = append(matchers, re)
	}

	var content map[string][]string
	if q.contains != "" {
		var err error
		content, err = f.grep(ctx, q.pdsPaths, q.contains)
		if err != nil {
			return err
		}
	}

	var (
		mu    sync.Mutex
		found []FoundDataSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberSearchLimit)

	for _, pds := range q.pdsPaths {
		g.Go(func() error {
			members, err := f.zoau.Members(gctx, pds, "")
			if err != nil {
				return fmt.Errorf("search %s: %w", pds, err)
			}

			var matched []string
			for _, m := range members {
				if !matchesAny(matchers, m) || q.excluded(m) {
					continue
				}
				if content != nil && !slices.Contains(content[pds], strings.ToUpper(m)) {
					continue
				}
				matched = append(matched, m)
			}

			mu.Lock()
			defer mu.Unlock()
			res.Examined += len(members)
			if len(matched) > 0 {
				found = append(found, FoundDataSet{
					Name:    pds,
					Type:    TypeNonVSAM,
					Members: matched,
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Name < found[j].Name
	})
	res.DataSets = append(res.DataSets, found...)
	return nil
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
