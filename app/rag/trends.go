package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"placement-ai/types"
)

// minTrendSources is how many distinct experiences a query must draw on
// before a trends block is attached to the response.
const minTrendSources = 3

// TrendsFromSources aggregates the experiences behind a query's sources.
// Returns nil when too few distinct experiences contributed.
func TrendsFromSources(sources []types.Source) *types.Trends {
	experiences := make(map[string]struct{})
	companies := make(map[string]struct{})
	minYear, maxYear := 0, 0
	for _, src := range sources {
		experiences[src.ExperienceID] = struct{}{}
		if src.Company != "" {
			companies[src.Company] = struct{}{}
		}
		if src.Year > 0 {
			if minYear == 0 || src.Year < minYear {
				minYear = src.Year
			}
			if src.Year > maxYear {
				maxYear = src.Year
			}
		}
	}
	if len(experiences) < minTrendSources {
		return nil
	}

	names := make([]string, 0, len(companies))
	for c := range companies {
		names = append(names, c)
	}
	sort.Strings(names)

	trends := &types.Trends{
		CompaniesMentioned: names,
		TotalExperiences:   len(experiences),
	}
	if minYear > 0 {
		trends.YearRange = []int{minYear, maxYear}
	}
	return trends
}

// CompanyCount is one row of a trend report.
type CompanyCount struct {
	Company string `json:"company"`
	Count   int    `json:"count"`
}

// TrendReport is the standalone trend analysis over the whole archive.
type TrendReport struct {
	Data     []CompanyCount `json:"trends"`
	Insights []string       `json:"insights"`
}

// AnalyzeTrends counts approved experiences per company, optionally
// restricted to one company substring or year.
func (s *Service) AnalyzeTrends(ctx context.Context, company string, year int) (*TrendReport, error) {
	experiences, err := s.store.GetAllApproved(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	total := 0
	for _, exp := range experiences {
		if company != "" && !strings.Contains(strings.ToLower(exp.CompanyName), strings.ToLower(company)) {
			continue
		}
		if year != 0 && exp.InterviewYear != year {
			continue
		}
		counts[orUnknown(exp.CompanyName)]++
		total++
	}
	if total == 0 {
		return &TrendReport{
			Data:     []CompanyCount{},
			Insights: []string{"No data available for the specified filters."},
		}, nil
	}

	data := make([]CompanyCount, 0, len(counts))
	for c, n := range counts {
		data = append(data, CompanyCount{Company: c, Count: n})
	}
	sort.Slice(data, func(i, j int) bool {
		if data[i].Count != data[j].Count {
			return data[i].Count > data[j].Count
		}
		return data[i].Company < data[j].Company
	})
	if len(data) > 10 {
		data = data[:10]
	}

	insights := []string{
		fmt.Sprintf("Total experiences analyzed: %d", total),
		fmt.Sprintf("Top company: %s with %d experiences", data[0].Company, data[0].Count),
	}
	return &TrendReport{Data: data, Insights: insights}, nil
}
