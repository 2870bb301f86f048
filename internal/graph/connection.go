package graph

import (
	"encoding/base64"
	"strconv"
	"strings"

	"zola/internal/models"
	"zola/internal/repository"
)

const (
	// maxPageSize caps first/last and is the page size when neither is given.
	maxPageSize = 100

	cursorPrefix = "arrayconnection:"
)

// ConnectionArgs are the Relay pagination arguments shared by every connection field.
type ConnectionArgs struct {
	First  *int32
	After  *string
	Last   *int32
	Before *string
}

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) {
		return 0, models.NewValidationError("Invalid cursor: " + cursor)
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || offset < 0 {
		return 0, models.NewValidationError("Invalid cursor: " + cursor)
	}
	return offset, nil
}

// window is the [start, end) slice of an ordered result selected by ConnectionArgs.
type window struct {
	start, end   int
	hasPrevious  bool
	hasNext      bool
	lower, upper int
	first, last  *int
}

// plan validates the arguments and decodes the cursors. upper stays -1
// without a before cursor.
func (a ConnectionArgs) plan() (*window, error) {
	w := &window{lower: 0, upper: -1}
	if a.First != nil {
		if *a.First < 0 {
			return nil, models.NewFieldError("first", "Argument \"first\" must be a non-negative integer.")
		}
		f := min(int(*a.First), maxPageSize)
		w.first = &f
	}
	if a.Last != nil {
		if *a.Last < 0 {
			return nil, models.NewFieldError("last", "Argument \"last\" must be a non-negative integer.")
		}
		l := min(int(*a.Last), maxPageSize)
		w.last = &l
	}
	if w.first == nil && w.last == nil {
		f := maxPageSize
		w.first = &f
	}
	if a.After != nil && *a.After != "" {
		off, err := decodeCursor(*a.After)
		if err != nil {
			return nil, err
		}
		w.lower = off + 1
	}
	if a.Before != nil && *a.Before != "" {
		off, err := decodeCursor(*a.Before)
		if err != nil {
			return nil, err
		}
		w.upper = off
	}
	return w, nil
}

// resolve fixes start and end against the real result size.
func (w *window) resolve(total int) {
	upper := total
	if w.upper >= 0 && w.upper < upper {
		upper = w.upper
	}
	start, end := min(w.lower, upper), upper
	if w.first != nil && start+*w.first < end {
		end = start + *w.first
	}
	if w.last != nil && end-*w.last > start {
		start = end - *w.last
	}
	w.start, w.end = start, end
	w.hasPrevious = w.last != nil && start > w.lower
	w.hasNext = w.first != nil && end < upper
}

// needsTotal is true when the slice position depends on the result size.
func (w *window) needsTotal() bool {
	return w.last != nil
}

// page is the repository window to load once the size is known (or not needed).
func (w *window) page() repository.Page {
	if w.needsTotal() {
		return repository.Page{Offset: w.start, Limit: max(w.end-w.start, 0)}
	}
	limit := *w.first
	if w.upper >= 0 && w.upper-w.lower < limit {
		limit = max(w.upper-w.lower, 0)
	}
	return repository.Page{Offset: w.lower, Limit: limit}
}

// fetchWindow loads one connection page through fetch, counting first when
// the arguments paginate from the end.
func fetchWindow[T any](args ConnectionArgs, fetch func(repository.Page) ([]T, int64, error)) ([]T, *window, int, error) {
	w, err := args.plan()
	if err != nil {
		return nil, nil, 0, err
	}
	if w.needsTotal() {
		_, total, err := fetch(repository.Page{Limit: 1})
		if err != nil {
			return nil, nil, 0, err
		}
		w.resolve(int(total))
	}
	page := w.page()
	if page.Limit == 0 {
		_, total, err := fetch(repository.Page{Limit: 1})
		if err != nil {
			return nil, nil, 0, err
		}
		w.resolve(int(total))
		return nil, w, int(total), nil
	}
	items, total, err := fetch(page)
	if err != nil {
		return nil, nil, 0, err
	}
	w.resolve(int(total))
	if n := w.end - w.start; len(items) > n {
		items = items[:max(n, 0)]
	}
	return items, w, int(total), nil
}

// sliceWindow applies the arguments to a result that is already in memory.
func sliceWindow[T any](args ConnectionArgs, all []T) ([]T, *window, error) {
	w, err := args.plan()
	if err != nil {
		return nil, nil, err
	}
	w.resolve(len(all))
	return all[w.start:w.end], w, nil
}

func (w *window) cursor(i int) string {
	return encodeCursor(w.start + i)
}

type pageInfoResolver struct {
	w     *window
	count int
}

func (r *pageInfoResolver) HasNextPage() bool     { return r.w.hasNext }
func (r *pageInfoResolver) HasPreviousPage() bool { return r.w.hasPrevious }

func (r *pageInfoResolver) StartCursor() *string {
	if r.count == 0 {
		return nil
	}
	c := r.w.cursor(0)
	return &c
}

func (r *pageInfoResolver) EndCursor() *string {
	if r.count == 0 {
		return nil
	}
	c := r.w.cursor(r.count - 1)
	return &c
}

// parseOrder maps an "<field>_ASC|_DESC" enum value onto a whitelisted column.
func parseOrder(value *string, columns map[string]string) repository.Order {
	if value == nil {
		return repository.Order{}
	}
	field, dir, ok := strings.Cut(*value, "_")
	if !ok {
		return repository.Order{}
	}
	column, known := columns[field]
	if !known {
		return repository.Order{}
	}
	return repository.Order{Column: column, Desc: dir == "DESC"}
}
