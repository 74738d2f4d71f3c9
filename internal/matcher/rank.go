package matcher

import (
	"sort"

	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/scoring"
)

// score computes the structured score of every posting and fuses it with the
// semantic score when the posting was embedded. Embedded postings outside the
// queried top-K have a semantic score of 0.
func (m *Matcher) score(resume *jobs.Resume, canonical []*jobs.Posting, vectors map[string][]float32, semantic map[string]float64) []jobs.MatchResult {
	results := make([]jobs.MatchResult, 0, len(canonical))
	for _, p := range canonical {
		breakdown := m.scorer.Breakdown(resume, p)
		structured := m.scorer.Combine(breakdown)

		result := jobs.MatchResult{
			PostingID:       p.ID,
			StructuredScore: structured,
			CombinedScore:   structured,
			Breakdown:       breakdown,
		}

		if _, ok := vectors[p.ID]; ok {
			result.SemanticAvailable = true
			result.SemanticScore = semantic[p.ID]
			result.CombinedScore = Fuse(m.cfg.Alpha, result.SemanticScore, structured)
		}

		results = append(results, result)
	}
	return results
}

// Fuse returns alpha*semantic + (1-alpha)*structured within [0,1].
func Fuse(alpha, semantic, structured float64) float64 {
	return scoring.Clamp(alpha*semantic + (1-alpha)*structured)
}

// rank orders results by combined score, then structured score, then scrape
// recency, then posting id, assigns 1-based ranks and applies MinScore and Limit.
func (m *Matcher) rank(results []jobs.MatchResult, canonical []*jobs.Posting) []jobs.MatchResult {
	postings := make(map[string]*jobs.Posting, len(canonical))
	for _, p := range canonical {
		postings[p.ID] = p
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.StructuredScore != b.StructuredScore {
			return a.StructuredScore > b.StructuredScore
		}
		ta, tb := postings[a.PostingID].ScrapedAt, postings[b.PostingID].ScrapedAt
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.PostingID < b.PostingID
	})

	ranked := make([]jobs.MatchResult, 0, len(results))
	for i := range results {
		results[i].Rank = i + 1
		if results[i].CombinedScore < m.cfg.MinScore {
			continue
		}
		if m.cfg.Limit > 0 && len(ranked) == m.cfg.Limit {
			break
		}
		ranked = append(ranked, results[i])
	}
	return ranked
}
