package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/httpfetch"
)

const (
	pageSize  = 50
	listUnits = 1
)

var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

type thumbnail struct {
	URL string `json:"url"`
}

type snippet struct {
	PublishedAt  string               `json:"publishedAt"`
	ChannelTitle string               `json:"channelTitle"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Tags         []string             `json:"tags"`
	Thumbnails   map[string]thumbnail `json:"thumbnails"`
	ResourceID   struct {
		VideoID string `json:"videoId"`
	} `json:"resourceId"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			VideoID          string `json:"videoId"`
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videoResource struct {
	ID             string  `json:"id"`
	Snippet        snippet `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount string `json:"viewCount"`
	} `json:"statistics"`
}

type videosResponse struct {
	Items []videoResource `json:"items"`
}

type apiErrorBody struct {
	Error struct {
		Code   int    `json:"code"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// apiClient speaks the subset of the YouTube Data API v3 the crawler needs.
type apiClient struct {
	fetcher *httpfetch.Fetcher
	quota   *Quota
	apiKey  string
	baseURL string
}

func (a *apiClient) call(ctx context.Context, key, endpoint string, params url.Values, out any) error {
	if a.apiKey == "" {
		return fmt.Errorf("%w: youtube api key not configured", domain.ErrInvalidOperation)
	}
	if err := a.quota.Spend(listUnits); err != nil {
		return err
	}
	params.Set("key", a.apiKey)
	u := strings.TrimRight(a.baseURL, "/") + "/" + endpoint + "?" + params.Encode()

	err := a.fetcher.GetJSON(ctx, key, u, out)
	if isQuotaError(err) {
		a.quota.Exhaust()
		return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, endpoint)
	}
	return err
}

func (a *apiClient) playlistPage(ctx context.Context, key, playlistID, pageToken string) (*playlistItemsResponse, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	var out playlistItemsResponse
	if err := a.call(ctx, key, "playlistItems", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// videos fetches details for up to pageSize ids, keyed by id.
func (a *apiClient) videos(ctx context.Context, key string, ids []string) (map[string]videoResource, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", strings.Join(ids, ","))
	var out videosResponse
	if err := a.call(ctx, key, "videos", params, &out); err != nil {
		return nil, err
	}
	byID := make(map[string]videoResource, len(out.Items))
	for _, v := range out.Items {
		byID[v.ID] = v
	}
	return byID, nil
}

func isQuotaError(err error) bool {
	var upstreamErr *httpfetch.UpstreamError
	if !errors.As(err, &upstreamErr) || upstreamErr.StatusCode != http.StatusForbidden {
		return false
	}
	var body apiErrorBody
	if json.Unmarshal(upstreamErr.Body, &body) != nil {
		return false
	}
	for _, e := range body.Error.Errors {
		if quotaReasons[e.Reason] {
			return true
		}
	}
	return false
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration such as PT1H23M45S to seconds.
// Unparseable values yield zero.
func ParseDuration(s string) int {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * mult
	}
	return total
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
