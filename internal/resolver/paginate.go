package resolver

import (
	"context"

	"github.com/oskvr37/tiddl/internal/catalog"
)

type pageFunc[T any] func(ctx context.Context, limit, offset int) (*catalog.Page[T], error)

// paginate requests pages starting at offset 0 and advances by the limit the
// server echoed until the offset reaches the total. A page with a zero limit
// ends the walk.
func paginate[T any](ctx context.Context, limit int, fetch pageFunc[T], each func(T) error) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := fetch(ctx, limit, offset)
		if err != nil {
			return err
		}
		for _, it := range page.Items {
			if err := each(it); err != nil {
				return err
			}
		}
		if page.Limit <= 0 {
			return nil
		}
		offset += page.Limit
		if offset >= page.TotalNumberOfItems {
			return nil
		}
	}
}
