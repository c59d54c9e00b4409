package retrieval

import "regexp"

// weightedPattern is a single regex/weight pair contributing to an intent's score.
type weightedPattern struct {
	pattern *regexp.Regexp
	weight  float64
}

// intentDef pairs an intent with its ordered weighted patterns. Order matters:
// ties in score are broken by earliest declaration order, per spec.md §4.2.
type intentDef struct {
	intent   Intent
	patterns []weightedPattern
}

func wp(pattern string, weight float64) weightedPattern {
	return weightedPattern{pattern: regexp.MustCompile(pattern), weight: weight}
}

// intentDefs lists the 11 intents in declaration order, excluding "general"
// which is the fallback with no patterns of its own.
var intentDefs = []intentDef{
	{IntentSecurity, []weightedPattern{
		wp(`(?i)\bvulnerabilit`, 1.0),
		wp(`(?i)\bauthenticat`, 0.9),
		wp(`(?i)\bauthoriz`, 0.7),
		wp(`(?i)\bsecurity\b`, 0.9),
		wp(`(?i)\bexploit\b`, 1.0),
		wp(`(?i)\binjection\b`, 0.9),
		wp(`(?i)\bCVE-\d+`, 1.0),
		wp(`(?i)\bxss\b|\bcsrf\b|\bsqli?\b`, 0.9),
		wp(`(?i)\bsecret\b|\bcredential`, 0.6),
	}},
	{IntentBugFix, []weightedPattern{
		wp(`(?i)\bfix(?:ing|ed)?\b`, 0.8),
		wp(`(?i)\bbug\b`, 1.0),
		wp(`(?i)\bbroken\b`, 0.7),
		wp(`(?i)\bregression\b`, 0.8),
		wp(`(?i)\bcrash(?:es|ing|ed)?\b`, 0.8),
		wp(`(?i)\bincorrect\b|\bwrong\b`, 0.5),
	}},
	{IntentFeature, []weightedPattern{
		wp(`(?i)\badd\b|\badding\b`, 0.6),
		wp(`(?i)\bnew feature\b`, 1.0),
		wp(`(?i)\bimplement\b`, 0.8),
		wp(`(?i)\bsupport for\b`, 0.7),
		wp(`(?i)\benhance(?:ment)?\b`, 0.6),
	}},
	{IntentRefactor, []weightedPattern{
		wp(`(?i)\brefactor`, 1.2),
		wp(`(?i)\bclean ?up\b`, 0.8),
		wp(`(?i)\brestructure\b`, 0.8),
		wp(`(?i)\bsimplify\b`, 0.6),
		wp(`(?i)\bextract\b`, 0.5),
	}},
	{IntentPerformance, []weightedPattern{
		wp(`(?i)\bperformance\b`, 1.0),
		wp(`(?i)\boptimi[sz]e\b`, 0.9),
		wp(`(?i)\blatency\b`, 0.8),
		wp(`(?i)\bslow\b`, 0.6),
		wp(`(?i)\bmemory leak\b`, 0.9),
		wp(`(?i)\bthroughput\b`, 0.8),
	}},
	{IntentTesting, []weightedPattern{
		wp(`(?i)\btest(?:s|ing)?\b`, 0.8),
		wp(`(?i)\bcoverage\b`, 0.8),
		wp(`(?i)\bunit test\b`, 1.0),
		wp(`(?i)\bintegration test\b`, 1.0),
		wp(`(?i)\bassert`, 0.5),
	}},
	{IntentDocs, []weightedPattern{
		wp(`(?i)\bdocumentation\b|\bdocs?\b`, 1.0),
		wp(`(?i)\breadme\b`, 0.9),
		wp(`(?i)\bcomment(?:s|ing)?\b`, 0.5),
		wp(`(?i)\bexplain\b`, 0.4),
	}},
	{IntentDeployment, []weightedPattern{
		wp(`(?i)\bdeploy(?:ment|ing|ed)?\b`, 1.0),
		wp(`(?i)\brelease\b`, 0.7),
		wp(`(?i)\bci\/cd\b|\bpipeline\b`, 0.8),
		wp(`(?i)\brollout\b|\brollback\b`, 0.8),
		wp(`(?i)\bproduction\b`, 0.6),
	}},
	{IntentArchitecture, []weightedPattern{
		wp(`(?i)\barchitecture\b`, 1.0),
		wp(`(?i)\bdesign\b`, 0.5),
		wp(`(?i)\bmodule boundary\b|\bmodule boundaries\b`, 0.9),
		wp(`(?i)\bscalab`, 0.6),
		wp(`(?i)\bmicroservice`, 0.7),
	}},
	{IntentDebug, []weightedPattern{
		wp(`(?i)\bdebug(?:ging)?\b`, 1.0),
		wp(`(?i)\btrace\b`, 0.6),
		wp(`(?i)\breproduce\b`, 0.6),
		wp(`(?i)\broot cause\b`, 0.8),
		wp(`(?i)\bstack ?trace\b`, 0.8),
	}},
}

// classifyResult is the internal outcome of scoring every intent.
type classifyResult struct {
	intent     Intent
	score      float64
	confidence float64
}

// ClassifyIntent scores taskDescription against every intent's weighted
// patterns. The highest score wins; ties broken by earliest declaration
// order. Confidence = min(score/3.0, 1.0). An empty score set falls back to
// IntentGeneral with confidence 0.1.
func ClassifyIntent(taskDescription string) (Intent, float64) {
	r := classify(taskDescription)
	return r.intent, r.confidence
}

func classify(taskDescription string) classifyResult {
	var best *intentDef
	var bestScore float64

	for i := range intentDefs {
		def := &intentDefs[i]
		var score float64
		for _, p := range def.patterns {
			if p.pattern.MatchString(taskDescription) {
				score += p.weight
			}
		}
		if score <= 0 {
			continue
		}
		if best == nil || score > bestScore {
			best = def
			bestScore = score
		}
	}

	if best == nil {
		return classifyResult{intent: IntentGeneral, score: 0, confidence: 0.1}
	}

	confidence := bestScore / 3.0
	if confidence > 1.0 {
		confidence = 1.0
	}
	return classifyResult{intent: best.intent, score: bestScore, confidence: confidence}
}
