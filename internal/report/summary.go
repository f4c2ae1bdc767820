package report

import (
	"sort"

	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/internal/linkage"
	"github.com/shaymcgreal/datatransformer/internal/quality"
)

// Summarize counts statuses, links and match group sizes.
func Summarize(rep *models.Report, res *linkage.Result) models.Summary {
	s := models.Summary{Rows: len(rep.Rows), Comparisons: res.Comparisons}
	groups := make(map[int]int)
	for _, row := range rep.Rows {
		if row.FinalStatus == string(quality.Pass) {
			s.Passed++
		} else {
			s.Failed++
		}
		if row.DuplicateScore != nil {
			s.Duplicates++
		}
		if row.Involved {
			s.Involved++
		}
		if row.MatchKey != 0 {
			groups[row.MatchKey]++
		}
	}
	s.MatchGroups = len(groups)

	bySize := make(map[int]int)
	for _, size := range groups {
		bySize[size]++
	}
	for size, n := range bySize {
		s.GroupSizes = append(s.GroupSizes, models.GroupSize{Size: size, Groups: n})
	}
	sort.Slice(s.GroupSizes, func(i, j int) bool { return s.GroupSizes[i].Size < s.GroupSizes[j].Size })
	return s
}
