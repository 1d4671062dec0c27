package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

type queryTypeRule struct {
	queryType domain.QueryType
	pattern   *regexp.Regexp
}

// Order matters: the first matching rule wins.
var queryTypeRules = []queryTypeRule{
	{domain.QueryComparative, regexp.MustCompile(`(?i)\b(compare|comparison|compared|versus|vs\.?|difference|differences|differ|better than|worse than|pros and cons|contrast|similarities)\b`)},
	{domain.QueryProcedural, regexp.MustCompile(`(?i)\b(how to|how do i|how can i|how should i|steps?|step by step|guide|tutorial|instructions|install|configure|set up|setup|implement)\b`)},
	{domain.QueryConceptual, regexp.MustCompile(`(?i)\b(what is|what are|what's|explain|meaning of|concept|define|definition|why does|why do|why is|understand|overview of)\b`)},
	{domain.QueryFactual, regexp.MustCompile(`(?i)\b(who|when|where|which|how many|how much|what year|what date|list|name the)\b`)},
}

var complexityIndicators = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "also": {}, "however": {}, "because": {},
	"although": {}, "whereas": {}, "while": {}, "between": {}, "versus": {},
	"relationship": {}, "impact": {}, "multiple": {}, "various": {},
	"additionally": {}, "furthermore": {}, "therefore": {},
}

var generalKnowledgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(?:what\s+is|what's|calculate|compute|how\s+much\s+is)?\s*-?\d+(?:\.\d+)?(?:\s*[-+*/x×÷^%]\s*-?\d+(?:\.\d+)?)+\s*(?:=\s*)?\??\s*$`),
	regexp.MustCompile(`(?i)^\s*(?:what\s+is\s+|what's\s+|tell\s+me\s+)?(?:the\s+)?capital\s+(?:city\s+)?of\s+[\p{L}][\p{L}\s.'-]*\??\s*$`),
	regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|howdy|greetings|good\s+(?:morning|afternoon|evening)|thanks|thank\s+you|bye|goodbye)(?:\s+there)?[\s!.,?]*$`),
}

// Personal markers keep retrieval on even when a general pattern matches.
var personalMarkerPattern = regexp.MustCompile(`(?i)\b(my|mine|our|notes?|documents?|saved|uploaded|knowledge base)\b`)

var recencyPattern = regexp.MustCompile(`(?i)\b(latest|newest|today|tonight|yesterday|tomorrow|current|currently|recent|recently|news|now|this\s+(?:week|month|year)|upcoming|trending|breaking)\b`)

var yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

const (
	baseInitialK       = 10
	baseTopK           = 3
	maxRecommendedTopK = 5
)

// QueryAnalyzer classifies queries from their text alone. It has no I/O and
// never fails.
type QueryAnalyzer struct{}

func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

func (a *QueryAnalyzer) Analyze(query string) domain.QueryAnalysis {
	query = strings.TrimSpace(query)
	queryType := classifyQueryType(query)
	complexity := classifyComplexity(query)

	return domain.QueryAnalysis{
		QueryType:       queryType,
		Complexity:      complexity,
		RetrievalParams: recommendRetrieval(queryType, complexity),
		NeedsWebSearch:  recommendWebSearch(query, queryType),
		NeedsRetrieval:  needsRetrieval(query),
	}
}

func classifyQueryType(query string) domain.QueryType {
	for _, rule := range queryTypeRules {
		if rule.pattern.MatchString(query) {
			return rule.queryType
		}
	}
	return domain.QueryExploratory
}

func classifyComplexity(query string) domain.Complexity {
	words := strings.Fields(strings.ToLower(query))
	indicators := 0
	for _, word := range words {
		word = strings.Trim(word, ".,;:!?\"'()")
		if _, ok := complexityIndicators[word]; ok {
			indicators++
		}
	}

	switch {
	case len(words) > 15 || indicators >= 2:
		return domain.ComplexityComplex
	case len(words) > 8 || indicators >= 1:
		return domain.ComplexityModerate
	default:
		return domain.ComplexitySimple
	}
}

func needsRetrieval(query string) bool {
	if query == "" {
		return false
	}
	if personalMarkerPattern.MatchString(query) {
		return true
	}
	for _, pattern := range generalKnowledgePatterns {
		if pattern.MatchString(query) {
			return false
		}
	}
	return true
}

func recommendRetrieval(queryType domain.QueryType, complexity domain.Complexity) domain.RetrievalParams {
	topK := baseTopK
	switch queryType {
	case domain.QueryComparative:
		topK = 5
	case domain.QueryExploratory, domain.QueryProcedural:
		topK = 4
	}
	if complexity == domain.ComplexityComplex {
		topK = min(topK+1, maxRecommendedTopK)
	}
	return domain.RetrievalParams{
		InitialK:       baseInitialK,
		TopK:           topK,
		MaxFinalChunks: topK,
	}
}

func recommendWebSearch(query string, queryType domain.QueryType) domain.WebSearchDecision {
	if recencyPattern.MatchString(query) || yearPattern.MatchString(query) || queryType == domain.QueryExploratory {
		return domain.WebSearchYes
	}
	return domain.WebSearchUndecided
}
