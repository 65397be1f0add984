package core

import "strings"

// Paginator is one page of records plus the totals needed to render links.
type Paginator struct {
	Items       []Record
	Total       int64
	PerPage     int64
	CurrentPage int64
	LastPage    int64
}

// HasMorePages reports whether a page follows the current one.
func (p *Paginator) HasMorePages() bool {
	return p.CurrentPage < p.LastPage
}

// SimplePaginator is a page of records without a total count.
type SimplePaginator struct {
	Items       []Record
	PerPage     int64
	CurrentPage int64
	HasMore     bool
}

func normalizePage(page, perPage int64) (int64, int64, error) {
	if perPage <= 0 {
		return 0, 0, invalidArgf("per page must be positive, got %d", perPage)
	}
	if page < 1 {
		page = 1
	}
	return page, perPage, nil
}

// Paginate counts the matching rows and fetches one page. Both queries
// run on clones, so s is left untouched.
func (s *Statement) Paginate(page, perPage int64) (*Paginator, error) {
	page, perPage, err := normalizePage(page, perPage)
	if err != nil {
		return nil, err
	}
	total, err := s.Count()
	if err != nil {
		return nil, err
	}
	p := &Paginator{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    (total + perPage - 1) / perPage,
	}
	if p.LastPage < 1 {
		p.LastPage = 1
	}
	if total == 0 {
		p.Items = []Record{}
		return p, nil
	}
	p.Items, err = s.rowQuery().ForPage(page, perPage).Get()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SimplePaginate fetches perPage+1 rows to learn whether another page
// exists, without counting.
func (s *Statement) SimplePaginate(page, perPage int64) (*SimplePaginator, error) {
	page, perPage, err := normalizePage(page, perPage)
	if err != nil {
		return nil, err
	}
	items, err := s.rowQuery().Offset((page - 1) * perPage).Limit(perPage + 1).Get()
	if err != nil {
		return nil, err
	}
	p := &SimplePaginator{PerPage: perPage, CurrentPage: page}
	if int64(len(items)) > perPage {
		p.HasMore = true
		items = items[:perPage]
	}
	p.Items = items
	return p, nil
}

// Search paginates rows where any of columns contains term. An empty
// term paginates without filtering.
func (s *Statement) Search(term string, columns []string, page, perPage int64) (*Paginator, error) {
	c := s.rowQuery()
	term = strings.TrimSpace(term)
	if term != "" {
		if len(columns) == 0 {
			return nil, invalidArgf("search needs at least one column")
		}
		pattern := "%" + term + "%"
		c.WhereGroup(func(q *Statement) {
			for _, col := range columns {
				q.OrWhere(col, "LIKE", pattern)
			}
		})
	}
	return c.Paginate(page, perPage)
}
