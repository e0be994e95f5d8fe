// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/flywheel/internal/log"
	"github.com/teradata-labs/flywheel/pkg/model"
)

// ProactiveWeights splits the proactive overall score (before the pattern
// confidence factor).
type ProactiveWeights struct {
	Naming    float64
	Unit      float64
	Metadata  float64
	Knowledge float64
}

// DefaultProactiveWeights matches the documented defaults.
func DefaultProactiveWeights() ProactiveWeights {
	return ProactiveWeights{Naming: 0.50, Unit: 0.25, Metadata: 0.15, Knowledge: 0.10}
}

// ProactiveConfig tunes the knowledge-based matcher.
type ProactiveConfig struct {
	Weights ProactiveWeights
	// MinOverall is the keep threshold; exactly-at is kept.
	MinOverall float64
	// MinGroupSize drops prefix groups smaller than this.
	MinGroupSize int
	// MinAssignment drops role assignments scoring under this.
	MinAssignment float64
	// SuggestionTTL sets the expiry of created suggestions.
	SuggestionTTL time.Duration
	// UnanalyzedWindow bounds the "recent proactive cluster" exclusion.
	UnanalyzedWindow time.Duration
}

// DefaultProactiveConfig matches the documented defaults.
func DefaultProactiveConfig() ProactiveConfig {
	return ProactiveConfig{
		Weights:          DefaultProactiveWeights(),
		MinOverall:       0.40,
		MinGroupSize:     3,
		MinAssignment:    0.30,
		SuggestionTTL:    model.DefaultSuggestionTTL,
		UnanalyzedWindow: 24 * time.Hour,
	}
}

// Proactive matches newly-registered tags from names and the knowledge
// base, before any telemetry exists.
type Proactive struct {
	cfg   ProactiveConfig
	store Store
	pub   Publisher
}

// NewProactive wires the proactive matcher. pub may be nil.
func NewProactive(cfg ProactiveConfig, store Store, pub Publisher) *Proactive {
	def := DefaultProactiveConfig()
	if cfg.Weights == (ProactiveWeights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.MinOverall <= 0 {
		cfg.MinOverall = def.MinOverall
	}
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = def.MinGroupSize
	}
	if cfg.MinAssignment <= 0 {
		cfg.MinAssignment = def.MinAssignment
	}
	if cfg.SuggestionTTL <= 0 {
		cfg.SuggestionTTL = def.SuggestionTTL
	}
	if cfg.UnanalyzedWindow <= 0 {
		cfg.UnanalyzedWindow = def.UnanalyzedWindow
	}
	return &Proactive{cfg: cfg, store: store, pub: pub}
}

// Prefix skeletons tried in order; the first capture group is the prefix.
var prefixSkeletons = []*regexp.Regexp{
	regexp.MustCompile(`^([A-Za-z]+_?\d+)_`),
	regexp.MustCompile(`^([A-Za-z]+\d+)\.`),
}

// ExtractPrefix pulls the asset prefix from a tag name, falling back to the
// segment before the first separator.
func ExtractPrefix(name string) string {
	for _, re := range prefixSkeletons {
		if m := re.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	if i := strings.IndexAny(name, "_.-"); i > 0 {
		return name[:i]
	}
	return ""
}

var tokenSplit = regexp.MustCompile(`[_.\-\s]+`)

// Tokenize splits a tag name into lowercase tokens.
func Tokenize(name string) []string {
	var out []string
	for _, t := range tokenSplit.Split(name, -1) {
		if t != "" {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

// RunOnce matches all currently-unanalyzed tags. Returns the number of
// suggestions upserted.
func (m *Proactive) RunOnce(ctx context.Context, now time.Time) (int, error) {
	points, err := m.store.ListUnanalyzedPoints(ctx, now.Add(-m.cfg.UnanalyzedWindow))
	if err != nil {
		return 0, err
	}
	return m.MatchPoints(ctx, points, now)
}

// MatchPoints matches a caller-supplied tag subset.
func (m *Proactive) MatchPoints(ctx context.Context, points []model.Point, now time.Time) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	kb, err := m.loadKnowledge(ctx)
	if err != nil {
		return 0, err
	}
	patterns, err := m.store.ListMatchablePatterns(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, group := range groupByPrefix(points, m.cfg.MinGroupSize) {
		n, err := m.matchGroup(ctx, group, patterns, kb, now)
		if err != nil {
			log.Warn("proactive group match failed",
				zap.String("prefix", group.prefix), zap.Error(err))
			continue
		}
		created += n
	}
	return created, nil
}

type prefixGroup struct {
	prefix string
	points []model.Point
}

func groupByPrefix(points []model.Point, minSize int) []prefixGroup {
	byPrefix := make(map[string][]model.Point)
	for _, p := range points {
		prefix := ExtractPrefix(p.Name)
		if prefix == "" {
			continue
		}
		byPrefix[prefix] = append(byPrefix[prefix], p)
	}
	prefixes := make([]string, 0, len(byPrefix))
	for k, pts := range byPrefix {
		if len(pts) >= minSize {
			prefixes = append(prefixes, k)
		}
	}
	sort.Strings(prefixes)
	out := make([]prefixGroup, 0, len(prefixes))
	for _, k := range prefixes {
		pts := byPrefix[k]
		sort.Slice(pts, func(i, j int) bool { return pts[i].SeqID < pts[j].SeqID })
		out = append(out, prefixGroup{prefix: k, points: pts})
	}
	return out
}

type knowledge struct {
	abbrevs     map[string][]model.Abbreviation
	units       map[string]string
	conventions []model.NamingConvention
}

func (m *Proactive) loadKnowledge(ctx context.Context) (*knowledge, error) {
	abbrevs, err := m.store.LoadAbbreviations(ctx)
	if err != nil {
		return nil, err
	}
	units, err := m.store.LoadUnitMappings(ctx)
	if err != nil {
		return nil, err
	}
	conventions, err := m.store.ListNamingConventions(ctx)
	if err != nil {
		return nil, err
	}
	return &knowledge{abbrevs: abbrevs, units: units, conventions: conventions}, nil
}

// lookup returns the winning abbreviation for a token. An entry whose
// context tag appears in the group's context hint beats any entry whose
// context is absent or foreign; priority breaks ties within the winning
// tier. Matching is case-insensitive throughout.
func (kb *knowledge) lookup(token, hint string) (model.Abbreviation, bool) {
	candidates := kb.abbrevs[strings.ToLower(token)]
	if len(candidates) == 0 {
		return model.Abbreviation{}, false
	}
	var best model.Abbreviation
	bestTier := -1
	for _, c := range candidates {
		tier := 0
		if c.Context != "" && hint != "" && strings.Contains(hint, strings.ToLower(c.Context)) {
			tier = 1
		}
		if tier > bestTier || (tier == bestTier && c.Priority > best.Priority) {
			best, bestTier = c, tier
		}
	}
	return best, true
}

// contextHint aggregates the group's names, descriptions and source ids
// into one lowercased haystack for context-aware abbreviation lookup.
func contextHint(points []model.Point) string {
	var b strings.Builder
	for _, p := range points {
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(p.Description)
		b.WriteByte(' ')
		b.WriteString(p.SourceID)
		b.WriteByte(' ')
	}
	return strings.ToLower(b.String())
}

// tagAnalysis is one tag's parsed view.
type tagAnalysis struct {
	point       model.Point
	tokens      []model.Token
	measurement string
	hitCount    int
}

func analyzeTag(p model.Point, kb *knowledge, hint string) tagAnalysis {
	a := tagAnalysis{point: p}
	for _, raw := range Tokenize(p.Name) {
		tok := model.Token{Raw: raw}
		if ab, ok := kb.lookup(raw, hint); ok {
			tok.Expansion = ab.Expansion
			tok.Measurement = ab.Measurement
			a.hitCount++
			if a.measurement == "" && ab.Measurement != "" {
				a.measurement = ab.Measurement
			}
		}
		a.tokens = append(a.tokens, tok)
	}
	if a.measurement == "" && p.Unit != "" {
		a.measurement = kb.units[p.Unit]
	}
	return a
}

func (m *Proactive) matchGroup(ctx context.Context, group prefixGroup, patterns []model.Pattern, kb *knowledge, now time.Time) (int, error) {
	hint := contextHint(group.points)
	analyses := make([]tagAnalysis, len(group.points))
	names := make([]string, len(group.points))
	members := make([]int64, len(group.points))
	for i, p := range group.points {
		analyses[i] = analyzeTag(p, kb, hint)
		names[i] = p.Name
		members[i] = p.SeqID
	}

	knowledgeBoost := m.knowledgeScore(names[0], analyses, kb)

	type scored struct {
		pattern     model.Pattern
		naming      float64
		unit        float64
		metadata    float64
		knowledge   float64
		overall     float64
		assignments []model.RoleAssignment
	}
	var kept []scored
	for _, p := range patterns {
		rawRoles, err := m.store.ListRoles(ctx, p.ID)
		if err != nil {
			return 0, err
		}
		roles := compileRoles(rawRoles)
		s := scored{
			pattern:   p,
			naming:    weightedNamingScore(roles, names),
			unit:      unitScore(roles, group.points),
			metadata:  metadataScore(p, group.points),
			knowledge: knowledgeBoost,
		}
		w := m.cfg.Weights
		base := w.Naming*s.naming + w.Unit*s.unit + w.Metadata*s.metadata + w.Knowledge*s.knowledge
		s.overall = base * p.Confidence
		if s.overall < m.cfg.MinOverall {
			continue
		}
		s.assignments = assignRoles(roles, analyses, m.cfg.MinAssignment)
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	// One proactive cluster carries every suggestion for the group.
	cl := model.NewCluster(members, 0, true)
	cl.Active = true
	cl.DetectedAt = now
	if err := m.store.UpsertCluster(ctx, cl); err != nil {
		return 0, err
	}

	tokens := make(map[string][]model.Token, len(analyses))
	for _, a := range analyses {
		tokens[a.point.Name] = a.tokens
	}

	created := 0
	for _, s := range kept {
		expl := model.Explanation{
			Scores: map[string]float64{
				"naming":    s.naming,
				"unit":      s.unit,
				"metadata":  s.metadata,
				"knowledge": s.knowledge,
				"overall":   s.overall,
			},
			MatchedRoles: s.assignments,
			Tokens:       tokens,
			NamePrefix:   group.prefix,
		}
		raw, err := json.Marshal(expl)
		if err != nil {
			return created, err
		}
		sg := model.Suggestion{
			ClusterID: cl.ID,
			PatternID: s.pattern.ID,
			// Proactive sub-scores ride the behavioral columns:
			// unit→range, metadata→rate; correlation stays 0.
			NamingScore:     s.naming,
			RangeScore:      s.unit,
			RateScore:       s.metadata,
			Overall:         s.overall,
			Reason:          proactiveReason(group, s.pattern, s.assignments),
			ExplanationJSON: string(raw),
			State:           model.SuggestionPending,
			CreatedAt:       now,
			ExpiresAt:       now.Add(m.cfg.SuggestionTTL),
		}
		stored, err := m.store.UpsertSuggestion(ctx, sg)
		if err != nil {
			return created, err
		}
		announce(m.pub, stored)
		created++
	}
	return created, nil
}

func proactiveReason(group prefixGroup, p model.Pattern, assignments []model.RoleAssignment) string {
	roleNames := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roleNames = append(roleNames, fmt.Sprintf("%s←%s", a.Role, a.Tag))
	}
	reason := fmt.Sprintf("%d tags with prefix %q look like %q before any telemetry",
		len(group.points), group.prefix, p.Name)
	if len(roleNames) > 0 {
		reason += "; roles: " + strings.Join(roleNames, ", ")
	}
	return reason
}

// weightedNamingScore is the role-weight-weighted fraction of roles whose
// regex set matches any tag name in the group.
func weightedNamingScore(roles []role, names []string) float64 {
	var total, matched float64
	for _, r := range roles {
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		if r.matchesAny(names) {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// unitScore is the fraction of unit-declaring roles for which some tag both
// matches the role's regexes and carries the expected unit. Neutral 0.5
// when no role declares a unit.
func unitScore(roles []role, points []model.Point) float64 {
	var declared, matched int
	for _, r := range roles {
		if r.ExpectedUnit == "" {
			continue
		}
		declared++
		for _, p := range points {
			if r.matches(p.Name) && strings.EqualFold(p.Unit, r.ExpectedUnit) {
				matched++
				break
			}
		}
	}
	if declared == 0 {
		return 0.5
	}
	return float64(matched) / float64(declared)
}

// metadataScore averages, per tag, the coverage of relevant terms (from the
// pattern name and category, length > 2) in the tag's description and
// address.
func metadataScore(p model.Pattern, points []model.Point) float64 {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(p.Name + " " + p.Category)) {
		if len(t) > 2 {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 || len(points) == 0 {
		return 0
	}
	var sum float64
	for _, pt := range points {
		text := strings.ToLower(pt.Description + " " + pt.Address)
		hit := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hit++
			}
		}
		sum += float64(hit) / float64(len(terms))
	}
	return sum / float64(len(points))
}

// knowledgeScore is the best naming-convention boost matching the first tag
// name, plus 0.05 when tags average two or more dictionary hits.
func (m *Proactive) knowledgeScore(firstName string, analyses []tagAnalysis, kb *knowledge) float64 {
	var boost float64
	for _, c := range kb.conventions {
		re, err := regexp.Compile(c.Regex)
		if err != nil {
			log.Warn("unusable naming convention", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		if re.MatchString(firstName) && c.Boost > boost {
			boost = c.Boost
		}
	}
	if len(analyses) > 0 {
		var hits int
		for _, a := range analyses {
			hits += a.hitCount
		}
		if float64(hits)/float64(len(analyses)) >= 2 {
			boost += 0.05
		}
	}
	return clamp01(boost)
}

// assignRoles picks, per role, the best tag by regex hit (+0.6), unit match
// (+0.3) and inferred-measurement affinity with the role name (+0.1).
func assignRoles(roles []role, analyses []tagAnalysis, minScore float64) []model.RoleAssignment {
	var out []model.RoleAssignment
	for _, r := range roles {
		var best model.RoleAssignment
		for _, a := range analyses {
			score := 0.0
			if r.matches(a.point.Name) {
				score += 0.6
			}
			if r.ExpectedUnit != "" && strings.EqualFold(a.point.Unit, r.ExpectedUnit) {
				score += 0.3
			}
			if a.measurement != "" && strings.Contains(strings.ToLower(r.Name), strings.ToLower(a.measurement)) {
				score += 0.1
			}
			if score > best.Score {
				best = model.RoleAssignment{Role: r.Name, SeqID: a.point.SeqID, Tag: a.point.Name, Score: score}
			}
		}
		if best.Score >= minScore {
			out = append(out, best)
		}
	}
	return out
}
