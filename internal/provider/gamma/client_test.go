package gamma_test

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	gamma "marketagg/internal/provider/gamma"
)

func jsonResponse(t *testing.T, body string) *http.Response {
	t.Helper()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	// Assert: the default construction succeeds.
	client, err := gamma.NewClient()
	require.NoErrorf(t, err, "unexpected error: %v", err)
	require.NotNilf(t, client, "unexpected nil client")
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller and http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Arrange: define a base url
	baseURL := "http://localhost:8080"

	// Assert: requests are issued against the overridden base url
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return jsonResponse(t, `[]`), nil
		}).
		Times(1)

	client, err := gamma.NewClient(gamma.WithBaseURL(baseURL), gamma.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: any catalog call exercises the base URL.
	_, err = client.MarketBySlug(t.Context(), "will-it-rain")
	require.NoError(t, err)
}

func TestMarketBySlug(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller and http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the slug and limit query params are set and the payload decodes.
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/markets", req.URL.Path)
			require.Equal(t, "will-btc-hit-100k", req.URL.Query().Get("slug"))
			require.Equal(t, "1", req.URL.Query().Get("limit"))
			return jsonResponse(t, `[{"question":"Will BTC hit 100k?","slug":"will-btc-hit-100k","conditionId":"0xabc","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.65\",\"0.35\"]","clobTokenIds":"[\"111\",\"222\"]","volumeNum":12345.67,"updatedAt":"2025-06-01T12:00:00Z"}]`), nil
		}).
		Times(1)

	client, err := gamma.NewClient(gamma.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	market, err := client.MarketBySlug(t.Context(), "will-btc-hit-100k")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, market)
	require.Equal(t, "Will BTC hit 100k?", market.Question)
	require.Equal(t, "0xabc", market.ConditionID)
	require.Equal(t, []string{"Yes", "No"}, market.OutcomeLabels())
	require.Equal(t, []float64{0.65, 0.35}, market.OutcomePriceList())
	require.Equal(t, []string{"111", "222"}, market.TokenIDs())
}

func TestMarketBySlug_NoMatchReturnsNil(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(t, `[]`), nil).
		Times(1)

	client, err := gamma.NewClient(gamma.WithHTTPClient(httpClient))
	require.NoError(t, err)

	market, err := client.MarketBySlug(t.Context(), "no-such-market")
	require.NoError(t, err)
	require.Nil(t, market)
}

func TestMarketByConditionID(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "0xdeadbeef", req.URL.Query().Get("condition_ids"))
			return jsonResponse(t, `[{"slug":"some-market","conditionId":"0xdeadbeef"}]`), nil
		}).
		Times(1)

	client, err := gamma.NewClient(gamma.WithHTTPClient(httpClient))
	require.NoError(t, err)

	market, err := client.MarketByConditionID(t.Context(), "0xdeadbeef")
	require.NoError(t, err)
	require.NotNil(t, market)
	require.Equal(t, "some-market", market.Slug)
}

func TestEvents(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/events", req.URL.Path)
			require.Equal(t, "true", req.URL.Query().Get("active"))
			require.Equal(t, "false", req.URL.Query().Get("closed"))
			require.Equal(t, "5", req.URL.Query().Get("limit"))
			return jsonResponse(t, `[{"markets":[{"slug":"m1"},{"slug":"m2"}]},{"markets":[{"slug":"m3"}]}]`), nil
		}).
		Times(1)

	client, err := gamma.NewClient(gamma.WithHTTPClient(httpClient))
	require.NoError(t, err)

	events, err := client.Events(t.Context(), gamma.EventsParams{Active: true, Limit: 5})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Len(t, events[0].Markets, 2)
	require.Equal(t, "m3", events[1].Markets[0].Slug)
}

func TestEvents_Non200IsError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(bytes.NewBufferString(""))}, nil).
		Times(1)

	client, err := gamma.NewClient(gamma.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = client.Events(t.Context(), gamma.EventsParams{Active: true, Limit: 5})
	require.Error(t, err)
}
