package insurance

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Sort orders supported by list queries.
const (
	SortNewest = "-created_at"
	SortOldest = "created_at"
)

// ListQuery carries pagination, free-text search and sort for list calls.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
	Sort   string
}

// Normalize clamps page and limit into range and defaults the sort.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Sort != SortOldest {
		q.Sort = SortNewest
	}
	return q
}

// Skip is the number of records before the requested page.
func (q ListQuery) Skip() int {
	q = q.Normalize()
	return (q.Page - 1) * q.Limit
}

// PageInfo is the pagination envelope returned with every list.
type PageInfo struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalRecords int  `json:"totalRecords"`
	Limit        int  `json:"limit"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
}

// NewPageInfo computes the envelope for total records under q.
func NewPageInfo(q ListQuery, total int) PageInfo {
	q = q.Normalize()
	pages := (total + q.Limit - 1) / q.Limit
	return PageInfo{
		CurrentPage:  q.Page,
		TotalPages:   pages,
		TotalRecords: total,
		Limit:        q.Limit,
		HasNextPage:  q.Page < pages,
		HasPrevPage:  q.Page > 1,
	}
}

// Page is one page of results.
type Page[T any] struct {
	Items []T
	Info  PageInfo
}

func newPage[T any](items []T, q ListQuery, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Info: NewPageInfo(q, total)}
}
