// Package pagination decides, page by page, what the Zoom Phone API should be
// asked for next and when a stream is finished.
//
// Zoom layers several incompatible paging behaviours on a single
// next_page_token field. This package models each one as a Strategy:
//
//   - TokenOnly: follow next_page_token until it comes back empty
//   - TokenWithDateRange: follow the token inside a one-month [from, to)
//     window, then move the window forward until it reaches the present
//   - PageCountWithDateRange: same windows, but the window ends when the
//     reported page_count has been consumed, because the token is present
//     even on the final page (a token that runs out early still ends it)
//   - SinglePage: one request, no paging
//
// A Paginator wraps one Strategy for the duration of a single stream sync. It
// counts pages inside the current window and turns every response into the next
// Cursor, or nil when the stream is done:
//
//	strategy := pagination.NewTokenWithDateRange(pagination.DateRangeConfig{PageSize: 100})
//	pager := pagination.NewPaginator("sms_sessions", strategy, logger)
//
//	var cursor *pagination.Cursor
//	for {
//		params := strategy.Params(pctx, cursor)
//		resp, err := fetch(ctx, params)
//		if err != nil {
//			return err
//		}
//		// ... emit records ...
//		pager.Advance()
//		cursor, err = pager.Next(pagination.Page{URL: resp.URL, Body: resp.Body})
//		if err != nil || cursor == nil {
//			return err
//		}
//	}
//
// Windows always advance by exactly one calendar month because the API rejects
// ranges spanning more than one month. Since the window end only moves forward
// and "now" only grows, every windowed stream terminates.
//
// FetchBatch runs independent single-page requests, such as the detail of
// every call on a page, on a small worker pool and returns them in order.
package pagination
