package dedup

import (
	"strings"
	"unicode"

	"github.com/spigell/jobmatch/internal/jobs"
)

// Similarity returns the pairwise textual similarity of two postings in [0,1]:
// the mean of title similarity and description similarity. When either
// description is empty the title similarity stands in for it.
func Similarity(a, b *jobs.Posting) float64 {
	title := TitleSimilarity(a.Title, b.Title)

	desc := title
	if strings.TrimSpace(a.Description) != "" && strings.TrimSpace(b.Description) != "" {
		desc = TokenJaccard(a.Description, b.Description)
	}

	return (title + desc) / 2
}

// TitleSimilarity is one minus the normalized edit distance of the normalized titles.
func TitleSimilarity(a, b string) float64 {
	ra := []rune(jobs.NormalizeText(a))
	rb := []rune(jobs.NormalizeText(b))

	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}

	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// TokenJaccard compares the word sets of two texts.
func TokenJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}

	shared := 0
	for token := range ta {
		if _, ok := tb[token]; ok {
			shared++
		}
	}

	return float64(shared) / float64(len(ta)+len(tb)-shared)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[token] = struct{}{}
	}
	return set
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
