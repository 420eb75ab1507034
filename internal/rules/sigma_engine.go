package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"threatrelay/pkg/models"
)

var techniqueTagRegex = regexp.MustCompile(`^attack\.t\d{4}(?:\.\d{3})?$`)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedInvalid int
}

type compiledSigmaRule struct {
	rule  sigma.Rule
	eval  *sigmaevaluator.RuleEvaluator
	label models.ThreatTag
}

// SigmaEngine evaluates Sigma rules against individual execution results.
type SigmaEngine struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaEngine loads Sigma rules from a file or directory and compiles
// evaluators. Rules using timeframes, aggregations, or keyword searches
// are skipped and counted in stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := make([]string, 0, 64)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		raw, err := os.ReadFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		rule, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		if ok, _ := isSimpleSingleEventRule(rule); !ok {
			stats.SkippedComplex++
			continue
		}

		compiled = append(compiled, compiledSigmaRule{
			rule:  rule,
			eval:  sigmaevaluator.ForRule(rule),
			label: tagFromRule(rule),
		})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled, ctx: context.Background()}, stats, nil
}

// Apply evaluates all loaded rules and returns tags for matched ones.
func (e *SigmaEngine) Apply(result *models.ExecutionResult) []models.ThreatTag {
	if e == nil || result == nil || len(e.rules) == 0 {
		return nil
	}

	eventMap := sigmaEventFrom(result)
	out := make([]models.ThreatTag, 0, 4)
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, eventMap)
		if err != nil {
			continue
		}
		if res.Match {
			out = append(out, rule.label)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isSimpleSingleEventRule(rule sigma.Rule) (bool, string) {
	if rule.Detection.Timeframe > 0 {
		return false, "timeframe is not supported"
	}

	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false, "aggregation condition is not supported"
		}
		if !isSimpleSearchExpression(cond.Search) {
			return false, "complex condition expression is not supported"
		}
	}

	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return false, "keyword search is not supported"
		}
		if len(search.EventMatchers) == 0 {
			return false, "search has no event matchers"
		}
	}

	return true, ""
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

// sigmaEventFrom flattens an execution result into the field map that
// rule matchers see.
func sigmaEventFrom(result *models.ExecutionResult) map[string]interface{} {
	buf := map[string]interface{}{
		"Type":        result.Type,
		"Status":      result.Status,
		"ThreatLevel": result.ThreatLevel,
		"Confidence":  result.Confidence,
		"Findings":    result.Findings,
		"Analysis":    result.Analysis,
	}
	if result.AgentID != "" {
		buf["AgentID"] = result.AgentID
	}
	if result.ExecutionID != "" {
		buf["ExecutionID"] = result.ExecutionID
	}
	if len(result.Recommendations) > 0 {
		actions := make([]string, 0, len(result.Recommendations))
		for _, rec := range result.Recommendations {
			actions = append(actions, rec.Action)
		}
		buf["RecommendedActions"] = actions
	}
	return buf
}

func tagFromRule(rule sigma.Rule) models.ThreatTag {
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = strings.TrimSpace(rule.Title)
	}

	level := strings.ToLower(strings.TrimSpace(rule.Level))
	if level == "" {
		level = "medium"
	}

	return models.ThreatTag{
		ID:        id,
		Name:      strings.TrimSpace(rule.Title),
		Severity:  level,
		Technique: techniqueFromTags(rule.Tags),
	}
}

func techniqueFromTags(tags []string) string {
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if techniqueTagRegex.MatchString(normalized) {
			return strings.ToUpper(strings.TrimPrefix(normalized, "attack."))
		}
	}
	return ""
}
