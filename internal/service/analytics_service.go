package service

import (
	"context"
	"sort"
	"time"

	"formflow/internal/apperr"
	"formflow/internal/repository"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type AnalyticsQuery struct {
	FromDate   string `form:"fromDate"`
	ToDate     string `form:"toDate"`
	SignedOnly bool   `form:"signedOnly"`
	// Mine restricts the aggregation to the caller's own submissions.
	Mine bool `form:"mine"`
}

// DepartmentTotal attributes the full discount of a submission to every department it
// names (Total) and also the evenly split share (SplitTotal). The sum of Total across
// departments can exceed the grand total when a submission names several departments.
type DepartmentTotal struct {
	Name        string          `json:"name"`
	Total       decimal.Decimal `json:"total"`
	SplitTotal  decimal.Decimal `json:"splitTotal"`
	Count       int             `json:"count"`
	Submissions []string        `json:"submissions"`
}

type DateRange struct {
	FromDate string `json:"fromDate,omitempty"`
	ToDate   string `json:"toDate,omitempty"`
}

type AnalyticsResponse struct {
	DepartmentTotals map[string]*DepartmentTotal `json:"departmentTotals"`
	Departments      []string                    `json:"departments"`
	GrandTotal       decimal.Decimal             `json:"grandTotal"`
	TotalSubmissions int                         `json:"totalSubmissions"`
	MonthlyData      map[string]decimal.Decimal  `json:"monthlyData"`
	DateRange        DateRange                   `json:"dateRange"`
}

type AnalyticsService interface {
	Aggregate(ctx context.Context, caller Caller, formSlug string, q AnalyticsQuery) (*AnalyticsResponse, error)
}

type analyticsService struct {
	subs     repository.SubmissionRepository
	forms    FormService
	location *time.Location
}

func NewAnalyticsService(subs repository.SubmissionRepository, forms FormService, location *time.Location) AnalyticsService {
	if location == nil {
		location = time.Local
	}
	return &analyticsService{subs: subs, forms: forms, location: location}
}

// dateBounds returns [from, to) where to is the start of the day after ToDate.
func (s *analyticsService) dateBounds(q AnalyticsQuery) (from, to *time.Time, err error) {
	if q.FromDate != "" {
		t, err := time.ParseInLocation(dateLayout, q.FromDate, s.location)
		if err != nil {
			return nil, nil, apperr.Validation("fromDate must be YYYY-MM-DD")
		}
		from = &t
	}
	if q.ToDate != "" {
		t, err := time.ParseInLocation(dateLayout, q.ToDate, s.location)
		if err != nil {
			return nil, nil, apperr.Validation("toDate must be YYYY-MM-DD")
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, apperr.Validation("fromDate must not be after toDate")
	}
	return from, to, nil
}

func (s *analyticsService) Aggregate(ctx context.Context, caller Caller, formSlug string, q AnalyticsQuery) (*AnalyticsResponse, error) {
	from, to, err := s.dateBounds(q)
	if err != nil {
		return nil, err
	}
	form, err := s.forms.Resolve(ctx, caller, formSlug)
	if err != nil {
		return nil, err
	}
	filter := repository.SubmissionFilter{SignedOnly: q.SignedOnly}
	if q.Mine {
		filter.UserID = &caller.ID
	}
	list, err := s.subs.ListByForm(ctx, form.ID, filter)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load submissions")
	}

	res := &AnalyticsResponse{
		DepartmentTotals: map[string]*DepartmentTotal{},
		Departments:      []string{},
		GrandTotal:       decimal.Zero,
		MonthlyData:      map[string]decimal.Decimal{},
		DateRange:        DateRange{FromDate: q.FromDate, ToDate: q.ToDate},
	}
	for _, sub := range list {
		created := sub.CreatedAt.In(s.location)
		if from != nil && created.Before(*from) {
			continue
		}
		if to != nil && !created.Before(*to) {
			continue
		}
		payload, err := decodePayload(sub.SubmissionData)
		if err != nil {
			continue
		}

		discount := payload.Discount()
		res.TotalSubmissions++
		res.GrandTotal = res.GrandTotal.Add(discount)
		month := created.Format("2006-01")
		res.MonthlyData[month] = res.MonthlyData[month].Add(discount)

		departments := payload.Departments()
		if len(departments) == 0 {
			continue
		}
		share := discount.Div(decimal.NewFromInt(int64(len(departments))))
		for _, name := range departments {
			dt, ok := res.DepartmentTotals[name]
			if !ok {
				dt = &DepartmentTotal{Name: name, Total: decimal.Zero, SplitTotal: decimal.Zero, Submissions: []string{}}
				res.DepartmentTotals[name] = dt
				res.Departments = append(res.Departments, name)
			}
			dt.Total = dt.Total.Add(discount)
			dt.SplitTotal = dt.SplitTotal.Add(share)
			dt.Count++
			dt.Submissions = append(dt.Submissions, sub.ID.String())
		}
	}
	sort.Strings(res.Departments)
	return res, nil
}
