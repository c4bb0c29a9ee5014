package notion

import (
	"context"
	"slices"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query, following cursors until
// the API reports no more results. The next page is requested while the
// current one is being collected.
func QueryAll(ctx context.Context, c Client, dbID string, query *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	type pageResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}

	request := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if query != nil {
			req.Filter = query.Filter
			req.Sorts = query.Sorts
			req.PageSize = query.PageSize
		}
		return req
	}

	var (
		all     []notionapi.Page
		pending <-chan pageResult
	)
	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error
		if pending != nil {
			r := <-pending
			resp, err = r.resp, r.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, request(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}

		ch := make(chan pageResult, 1)
		pending = ch
		next := request(resp.NextCursor)
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- pageResult{resp: r, err: e}
		}()
	}
}

// QueryByStatus returns the pages whose select property equals one of the
// given values. An empty string in values matches pages with no status set.
// Filtering happens client side so unset selects are handled uniformly.
// Results are ordered oldest first.
func QueryByStatus(ctx context.Context, c Client, dbID, property string, values ...string) ([]notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query by status")
	}

	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	var out []notionapi.Page
	for _, p := range pages {
		if want[SelectName(p.Properties, property)] {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b notionapi.Page) int {
		return a.CreatedTime.Compare(b.CreatedTime)
	})
	return out, nil
}
