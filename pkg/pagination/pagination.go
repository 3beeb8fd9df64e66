package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds validated page/limit query parameters.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page and limit from the query string. Unparsable or out of range
// values fall back to the defaults; limit is capped at MaxLimit.
func Parse(c *gin.Context) Params {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = DefaultPage
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Pages returns how many pages total rows span at this limit.
func (p Params) Pages(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return (total + int64(p.Limit) - 1) / int64(p.Limit)
}

// Body is the list payload shape shared by paged endpoints: items under key plus paging metadata.
func (p Params) Body(key string, items any, total int64) gin.H {
	return gin.H{
		key:           items,
		"total":       total,
		"page":        p.Page,
		"limit":       p.Limit,
		"total_pages": p.Pages(total),
	}
}
