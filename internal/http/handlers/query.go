package handlers

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const dateOnlyLayout = "2006-01-02"

// parseListFilter читает параметры списка из query-строки. Некорректные
// значения не подменяются значениями по умолчанию, а возвращаются как ошибки полей.
func parseListFilter(q url.Values) (domain.ListFilter, error) {
	filter := domain.DefaultListFilter()
	verr := &domain.ValidationError{}

	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("page", "Page must be greater than zero")
		}
		filter.Page = v
	}
	if raw := strings.TrimSpace(q.Get("pageSize")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("pageSize", "Page size must be between 1 and 100")
		}
		filter.PageSize = v
	}

	filter.SearchTerm = strings.TrimSpace(q.Get("search"))
	filter.OrderBy = strings.TrimSpace(q.Get("orderBy"))

	if raw := strings.TrimSpace(q.Get("ascending")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("ascending", "Ascending must be true or false")
		} else {
			filter.Ascending = v
		}
	}
	if raw := strings.TrimSpace(q.Get("isCancelled")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("isCancelled", "IsCancelled must be true or false")
		} else {
			filter.IsCancelled = &v
		}
	}

	filter.StartDate = parseDateParam(verr, q, "startDate", false)
	filter.EndDate = parseDateParam(verr, q, "endDate", true)

	if err := verr.Err(); err != nil {
		return domain.ListFilter{}, err
	}
	return filter, nil
}

// parseDateParam принимает RFC3339 или YYYY-MM-DD. Для конца диапазона дата без
// времени трактуется как конец дня.
func parseDateParam(verr *domain.ValidationError, q url.Values, name string, endOfDay bool) *time.Time {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.UTC()
		return &ts
	}
	day, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		verr.Add(name, "Date must be in RFC3339 or YYYY-MM-DD format")
		return nil
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day
}
