package core

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"tradeacademy.io/support-desk/internal/logger"
	"tradeacademy.io/support-desk/internal/store"
)

const DefaultSearchLimit = 5

type SearchResult struct {
	store.KnowledgeArticle
	Score int `json:"score"`
}

// KnowledgeService answers keyword searches over the ingested articles.
type KnowledgeService struct {
	store store.Store
}

func NewKnowledgeService(st store.Store) *KnowledgeService {
	return &KnowledgeService{store: st}
}

// IngestFile replaces the knowledge base with the articles in a markdown
// table of the form | title | keywords | answer |.
func (k *KnowledgeService) IngestFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge file %s: %w", path, err)
	}
	articles := ParseKnowledgeTable(string(content))
	if len(articles) == 0 {
		logger.Warn("No articles parsed from knowledge file", "path", path)
		return 0, nil
	}
	return k.store.ReplaceKnowledgeArticles(ctx, articles)
}

// ParseKnowledgeTable extracts one article per table row. Keywords are
// comma separated. The header, separator and malformed rows are skipped.
func ParseKnowledgeTable(content string) []store.KnowledgeArticle {
	var articles []store.KnowledgeArticle
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "|") || !strings.HasSuffix(trimmed, "|") {
			logger.Debug("Skipping non-table line", "line", i+1)
			continue
		}

		cells := strings.Split(strings.Trim(trimmed, "|"), "|")
		if len(cells) < 3 {
			logger.Debug("Skipping malformed table row", "line", i+1)
			continue
		}
		title := strings.TrimSpace(cells[0])
		answer := strings.TrimSpace(strings.Join(cells[2:], "|"))

		if isSeparatorRow(cells) || strings.EqualFold(title, "title") {
			continue
		}
		if title == "" || answer == "" {
			logger.Debug("Skipping row with empty title or answer", "line", i+1)
			continue
		}

		var keywords []string
		for _, kw := range strings.Split(cells[1], ",") {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if keywords == nil {
			keywords = []string{}
		}
		articles = append(articles, store.KnowledgeArticle{Title: title, Keywords: keywords, Answer: answer})
	}
	return articles
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(strings.TrimSpace(c), "-:") != "" {
			return false
		}
	}
	return true
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Search ranks articles by keyword hits in query, then title word hits.
// Articles with no hits are left out. limit <= 0 means DefaultSearchLimit.
func (k *KnowledgeService) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	tokens := tokenize(query)
	results := []SearchResult{}
	if len(tokens) == 0 {
		return results, nil
	}
	lowered := " " + strings.Join(tokens, " ") + " "

	articles, err := k.store.ListKnowledgeArticles(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range articles {
		score := 0
		for _, kw := range a.Keywords {
			if strings.Contains(lowered, " "+strings.Join(tokenize(kw), " ")+" ") {
				score += 2
			}
		}
		titleWords := tokenize(a.Title)
		for _, t := range tokens {
			for _, w := range titleWords {
				if t == w && len(t) > 2 {
					score++
				}
			}
		}
		if score > 0 {
			results = append(results, SearchResult{KnowledgeArticle: a, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
