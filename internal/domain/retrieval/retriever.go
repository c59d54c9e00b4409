package retrieval

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/guidanceplane/guidance/internal/apperr"
	"github.com/guidanceplane/guidance/internal/domain/rule"
)

// Risk boosts per spec.md §4.2 and the §6 configuration table.
const (
	defaultIntentBoost    = 0.15
	riskBoostCritical     = 0.10
	riskBoostHigh         = 0.07
	riskBoostMedium       = 0.05
	riskBoostLow          = 0.0
)

// negationPair is one (positive, negative) lexical pair used for
// contradiction detection, per spec.md §4.2.
type negationPair struct {
	positive *regexp.Regexp
	negative *regexp.Regexp
}

var negationPairs = []negationPair{
	{regexp.MustCompile(`(?i)\bmust\b`), regexp.MustCompile(`(?i)\bnever\b|\bdo not\b|\bavoid\b`)},
	{regexp.MustCompile(`(?i)\balways\b`), regexp.MustCompile(`(?i)\bnever\b|\bdon't\b`)},
	{regexp.MustCompile(`(?i)\brequire\b`), regexp.MustCompile(`(?i)\bforbid\b|\bprohibit\b`)},
}

// Config controls retriever-wide tunables, sourced from spec.md §6.
type Config struct {
	// IntentBoost is the additive score applied when a shard's intent tags
	// match the detected intent.
	IntentBoost float64
}

// Retriever indexes a rule.PolicyBundle's shards and answers retrieval
// requests. It owns (never transfers outward) the live shard pool; the
// optimizer is the only other writer, via Promote/Demote.
type Retriever struct {
	mu           sync.RWMutex
	constitution rule.Constitution
	shards       []rule.RuleShard
	provider     EmbeddingProvider
	cfg          Config
}

// New constructs a Retriever with the given embedding provider. A nil
// provider defaults to the hash-based provider at DefaultEmbeddingDim.
func New(provider EmbeddingProvider, cfg Config) *Retriever {
	if provider == nil {
		provider = NewHashEmbeddingProvider(DefaultEmbeddingDim)
	}
	if cfg.IntentBoost <= 0 {
		cfg.IntentBoost = defaultIntentBoost
	}
	return &Retriever{provider: provider, cfg: cfg}
}

// IndexWarning is a non-fatal issue surfaced while indexing (e.g. an
// embedding provider failure that fell back to the hash-based provider).
type IndexWarning struct {
	RuleID string
	Detail string
}

// Index stores bundle's shards and computes embeddings for any shard
// lacking one. Embedding failures fall back to the hash-based provider and
// are surfaced as warnings; indexing never fails outright.
func (r *Retriever) Index(bundle rule.PolicyBundle) []IndexWarning {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constitution = bundle.Constitution
	shards := make([]rule.RuleShard, len(bundle.Shards))
	copy(shards, bundle.Shards)

	var warnings []IndexWarning
	fallback := NewHashEmbeddingProvider(r.provider.Dim())
	for i, s := range shards {
		if s.Embedding != nil {
			continue
		}
		vec, err := r.provider.Embed(s.CompactText)
		if err != nil || len(vec) != r.provider.Dim() {
			warnings = append(warnings, IndexWarning{
				RuleID: s.Rule.ID,
				Detail: "embedding provider failed or returned mismatched dimension; used hash-based fallback",
			})
			vec, _ = fallback.Embed(s.CompactText)
		}
		shards[i].Embedding = vec
	}
	r.shards = shards
	return warnings
}

// Constitution returns a copy of the currently indexed constitution.
func (r *Retriever) Constitution() rule.Constitution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.constitution
}

// Promote moves a shard's rule into the constitution in place: sets
// source=root, isConstitution=true, priority += 100, optionally replaces
// text, and re-renders the constitution. Readers never observe a partial
// promotion (the shard pool and constitution are swapped under the lock).
func (r *Retriever) Promote(ruleID string, newText string, updatedAt func() int64, maxConstitutionLines int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, s := range r.shards {
		if s.Rule.ID == ruleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.NewInvalidStateError(ruleID, "shard not found for promotion")
	}

	promoted := r.shards[idx].Rule
	promoted.Source = rule.SourceRoot
	promoted.IsConstitution = true
	promoted.Priority += 100
	if newText != "" {
		promoted.Text = newText
	}

	r.shards = append(append([]rule.RuleShard{}, r.shards[:idx]...), r.shards[idx+1:]...)

	constRules := append(append([]rule.GuidanceRule{}, r.constitution.Rules...), promoted)
	rule.SortByPriorityDesc(constRules)
	r.constitution = rule.RenderConstitution(constRules, maxConstitutionLines)
	return nil
}

// Demote removes a rule from the constitution and returns it to the shard
// pool as a regular, non-constitution rule.
func (r *Retriever) Demote(ruleID string, maxConstitutionLines int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, cr := range r.constitution.Rules {
		if cr.ID == ruleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.NewInvalidStateError(ruleID, "rule not found in constitution for demotion")
	}

	demoted := r.constitution.Rules[idx]
	demoted.IsConstitution = false
	demoted.Priority = demoted.BasePriority

	constRules := append(append([]rule.GuidanceRule{}, r.constitution.Rules[:idx]...), r.constitution.Rules[idx+1:]...)
	r.constitution = rule.RenderConstitution(constRules, maxConstitutionLines)

	vec, _ := r.provider.Embed(compactTextOf(demoted))
	r.shards = append(r.shards, rule.RuleShard{Rule: demoted, CompactText: compactTextOf(demoted), Embedding: vec})
	return nil
}

func compactTextOf(r rule.GuidanceRule) string {
	return fmt.Sprintf("[%s] %s", r.ID, strings.Join(strings.Fields(r.Text), " "))
}

// FindRule looks up a rule by id across both the shard pool and the
// constitution, returning ok=false if neither holds it.
func (r *Retriever) FindRule(ruleID string) (rule.GuidanceRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.shards {
		if s.Rule.ID == ruleID {
			return s.Rule, true
		}
	}
	for _, cr := range r.constitution.Rules {
		if cr.ID == ruleID {
			return cr, true
		}
	}
	return rule.GuidanceRule{}, false
}

// Retrieve returns the constitution plus the top-K relevant shards for req.
func (r *Retriever) Retrieve(req Request) (Result, error) {
	r.mu.RLock()
	constitution := r.constitution
	shards := make([]rule.RuleShard, len(r.shards))
	copy(shards, r.shards)
	r.mu.RUnlock()

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	intent := req.Intent
	confidence := 1.0
	if intent == "" {
		intent, confidence = ClassifyIntent(req.TaskDescription)
	}

	taskVec, err := r.provider.Embed(req.TaskDescription)
	if err != nil {
		fallback := NewHashEmbeddingProvider(r.provider.Dim())
		taskVec, _ = fallback.Embed(req.TaskDescription)
	}

	type scored struct {
		shard rule.RuleShard
		sb    ScoreBreakdown
	}
	var candidates []scored
	for _, s := range shards {
		if !rule.MatchesRepoScope(s.Rule.RepoScopes, req.RepoPath) {
			continue
		}
		if req.MinRiskClass != "" && s.Rule.RiskClass.Rank() < req.MinRiskClass.Rank() {
			continue
		}

		cos := cosine(taskVec, s.Embedding)
		intentBoost := 0.0
		if s.Rule.HasIntent(string(intent)) {
			intentBoost = r.cfg.IntentBoost
		}
		risk := riskBoost(s.Rule.RiskClass)
		total := cos + intentBoost + risk

		candidates = append(candidates, scored{
			shard: s,
			sb: ScoreBreakdown{
				RuleID:      s.Rule.ID,
				Cosine:      cos,
				IntentBoost: intentBoost,
				RiskBoost:   risk,
				Total:       total,
			},
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sb.Total > candidates[j].sb.Total
	})

	var selected []rule.RuleShard
	var breakdown []ScoreBreakdown
	for _, c := range candidates {
		breakdown = append(breakdown, c.sb)
	}

	for _, c := range candidates {
		if len(selected) >= topK {
			break
		}
		selected = admit(selected, c.shard)
	}

	var parts []string
	parts = append(parts, constitution.Text)
	var shardLines []string
	for _, s := range selected {
		shardLines = append(shardLines, s.CompactText)
	}
	parts = append(parts, strings.Join(shardLines, "\n"))
	policyText := strings.Join(parts, "\n\n")

	return Result{
		PolicyText:     policyText,
		SelectedShards: selected,
		DetectedIntent: intent,
		Confidence:     confidence,
		ScoreBreakdown: breakdown,
	}, nil
}

// admit walks selected looking for a contradiction with candidate. When one
// is found, the higher-priority shard wins per spec.md §4.2: if candidate
// outranks the admitted shard it evicts it; equal priority keeps the shard
// admitted earlier (which, given descending-score order, had the earlier or
// equal score). Returns the updated selected list.
func admit(selected []rule.RuleShard, candidate rule.RuleShard) []rule.RuleShard {
	for i, s := range selected {
		if !contradicts(s.Rule, candidate.Rule) {
			continue
		}
		if candidate.Rule.Priority > s.Rule.Priority {
			out := append([]rule.RuleShard{}, selected[:i]...)
			out = append(out, selected[i+1:]...)
			return append(out, candidate)
		}
		return selected
	}
	return append(selected, candidate)
}

// contradicts reports whether a and b share a domain tag and one matches a
// positive pattern while the other matches its paired negative pattern.
func contradicts(a, b rule.GuidanceRule) bool {
	if !sharesDomain(a, b) {
		return false
	}
	for _, np := range negationPairs {
		if np.positive.MatchString(a.Text) && np.negative.MatchString(b.Text) {
			return true
		}
		if np.positive.MatchString(b.Text) && np.negative.MatchString(a.Text) {
			return true
		}
	}
	return false
}

func sharesDomain(a, b rule.GuidanceRule) bool {
	for _, d := range a.Domains {
		if b.HasDomain(d) {
			return true
		}
	}
	return false
}

func riskBoost(rc rule.RiskClass) float64 {
	switch rc {
	case rule.RiskCritical:
		return riskBoostCritical
	case rule.RiskHigh:
		return riskBoostHigh
	case rule.RiskMedium:
		return riskBoostMedium
	default:
		return riskBoostLow
	}
}
