package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/popvault/pricewatch/internal/catalog"
)

func TestSearchTerms(t *testing.T) {
	t.Parallel()

	q := ItemQuery{Name: "Darth Maul", Series: "Star Wars"}
	require.Equal(t, "Darth Maul Star Wars", q.SearchTerms())

	q.Number = "594"
	q.Variant = "Glow in the Dark"
	require.Equal(t, "Darth Maul Star Wars 594 Glow in the Dark", q.SearchTerms())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"typed not found", NewFailure(FailureNotFound, catalog.SourceEbay, errors.New("no listings")), FailureNotFound},
		{"typed rate limited", NewFailure(FailureRateLimited, catalog.SourceEbay, nil), FailureRateLimited},
		{"wrapped failure", errors.Join(errors.New("outer"), NewFailure(FailureParse, catalog.SourceEbay, nil)), FailureParse},
		{"untyped error", errors.New("boom"), FailureNetwork},
		{"context deadline", context.DeadlineExceeded, FailureNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, Retryable(FailureNetwork))
	require.True(t, Retryable(FailureRateLimited))
	require.True(t, Retryable(FailureParse))
	require.False(t, Retryable(FailureNotFound))
}

func TestFailureErrorString(t *testing.T) {
	t.Parallel()

	f := NewFailure(FailureNetwork, catalog.SourceEbay, errors.New("connection refused"))
	require.Equal(t, "ebay: network failure: connection refused", f.Error())
	require.Equal(t, "ebay: parse failure", NewFailure(FailureParse, catalog.SourceEbay, nil).Error())
}
