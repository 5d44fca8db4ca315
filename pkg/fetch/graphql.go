package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/model"
)

// DefaultPageSize is the number of fact sheets requested per page
const DefaultPageSize = 500

const factSheetsQuery = `query TagFlowFactSheets($filter: FilterInput!, $first: Int, $after: String) {
  allFactSheets(filter: $filter, first: $first, after: $after) {
    totalCount
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        name
        type
        tags { id name color status tagGroup { id } }
      }
    }
  }
}`

// GraphQLFetcher queries the host's GraphQL API. Failures are returned to the
// caller without retrying.
type GraphQLFetcher struct {
	endpoint string
	token    string
	client   *http.Client
	pageSize int
	logger   *slog.Logger
}

// GraphQLOption customizes a GraphQLFetcher
type GraphQLOption func(*GraphQLFetcher)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) GraphQLOption {
	return func(f *GraphQLFetcher) { f.client = c }
}

// WithPageSize sets how many fact sheets are requested per page
func WithPageSize(n int) GraphQLOption {
	return func(f *GraphQLFetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// NewGraphQLFetcher creates a fetcher for the given endpoint and bearer token
func NewGraphQLFetcher(endpoint, token string, opts ...GraphQLOption) *GraphQLFetcher {
	f := &GraphQLFetcher{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		pageSize: DefaultPageSize,
		logger:   logging.New("fetch.graphql"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// filterInput is the host's FilterInput
type filterInput struct {
	FacetFilters   []model.FacetFilter `json:"facetFilters"`
	FullTextSearch string              `json:"fullTextSearch,omitempty"`
	IDs            []string            `json:"ids,omitempty"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type factSheetsResponse struct {
	Data struct {
		AllFactSheets struct {
			TotalCount int `json:"totalCount"`
			PageInfo   struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node model.FactSheet `json:"node"`
			} `json:"edges"`
		} `json:"allFactSheets"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (f *GraphQLFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	base := buildFilter(q)
	total, factSheets, err := f.fetchAll(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("fetching fact sheets: %w", err)
	}
	result := &Result{Total: total, FactSheets: factSheets}

	if q.IncludeMissing {
		if q.TagGroupID == model.UngroupedTagGroupID {
			// No facet exists for "has no ungrouped tag"; derive it locally
			result.Missing = missingFrom(factSheets, q.TagGroupID)
			result.MissingTotal = len(result.Missing)
		} else {
			missing := base
			missing.FacetFilters = append(append([]model.FacetFilter(nil), base.FacetFilters...), model.FacetFilter{
				FacetKey: q.TagGroupID,
				Operator: "OR",
				Keys:     []string{MissingKey},
			})
			result.MissingTotal, result.Missing, err = f.fetchAll(ctx, missing)
			if err != nil {
				return nil, fmt.Errorf("fetching fact sheets missing %s: %w", q.TagGroupID, err)
			}
		}
	}

	f.logger.InfoContext(ctx, "fetched fact sheets",
		"factSheetType", q.FactSheetType,
		"total", result.Total,
		"missing", result.MissingTotal,
		"durationMs", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// buildFilter augments the ambient filter with the fact sheet type facet
func buildFilter(q Query) filterInput {
	facets := make([]model.FacetFilter, 0, len(q.Filter.FacetFilters)+1)
	typeSet := false
	for _, facet := range q.Filter.FacetFilters {
		if facet.FacetKey == FactSheetTypeFacet {
			// The report decides the type
			typeSet = true
			facet = model.FacetFilter{FacetKey: FactSheetTypeFacet, Operator: "OR", Keys: []string{q.FactSheetType}}
		}
		facets = append(facets, facet)
	}
	if !typeSet {
		facets = append([]model.FacetFilter{{FacetKey: FactSheetTypeFacet, Operator: "OR", Keys: []string{q.FactSheetType}}}, facets...)
	}
	return filterInput{
		FacetFilters:   facets,
		FullTextSearch: q.Filter.FullTextSearchTerm,
		IDs:            q.Filter.DirectHits,
	}
}

func (f *GraphQLFetcher) fetchAll(ctx context.Context, filter filterInput) (int, []model.FactSheet, error) {
	var (
		factSheets []model.FactSheet
		total      int
		after      string
	)

	for page := 0; ; page++ {
		variables := map[string]any{"filter": filter, "first": f.pageSize}
		if after != "" {
			variables["after"] = after
		}

		var resp factSheetsResponse
		if err := f.do(ctx, graphQLRequest{Query: factSheetsQuery, Variables: variables}, &resp); err != nil {
			return 0, nil, err
		}

		conn := resp.Data.AllFactSheets
		total = conn.TotalCount
		for _, edge := range conn.Edges {
			factSheets = append(factSheets, edge.Node)
		}
		logging.Trace("fetched page", "page", page, "edges", len(conn.Edges), "total", total)

		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == "" || len(conn.Edges) == 0 {
			break
		}
		after = conn.PageInfo.EndCursor
	}

	return total, factSheets, nil
}

func (f *GraphQLFetcher) do(ctx context.Context, req graphQLRequest, out *factSheetsResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if f.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.token)
	}
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graphql endpoint returned %s: %s", resp.Status, truncate(string(data), 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(out.Errors) > 0 {
		messages := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
	}

	return nil
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
