package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend-bikevillage/internal/metrics"
	"backend-bikevillage/internal/shared/geo"

	"github.com/patrickmn/go-cache"
	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	searchLimit    = 5
	minQueryLength = 3
)

type Options struct {
	BaseURL           string
	Token             string
	Bounds            orb.Bound
	Timeout           time.Duration
	RequestsPerSecond float64
	SearchCacheTTL    time.Duration
	HTTPClient        *http.Client
	Metrics           *metrics.Registry
}

// Client talks to the directions and geocoding APIs. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	bounds  orb.Bound
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	cache   *cache.Cache
	group   singleflight.Group
	metrics *metrics.Registry
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.mapbox.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.SearchCacheTTL <= 0 {
		opts.SearchCacheTTL = 10 * time.Minute
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		bounds:  opts.Bounds,
		http:    httpClient,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))),
		cache:   cache.New(opts.SearchCacheTTL, 2*opts.SearchCacheTTL),
		metrics: opts.Metrics,
	}
}

// Configured reports whether an access token is present.
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// Bounds is the fixed box that restricts search results and the map view.
func (c *Client) Bounds() orb.Bound {
	return c.bounds
}

// Directions fetches a route from one point to another for the given profile.
func (c *Client) Directions(ctx context.Context, profile Profile, from, to orb.Point) (Route, error) {
	if !c.Configured() {
		return Route{}, ErrMissingToken
	}
	if _, err := ParseProfile(string(profile)); err != nil {
		return Route{}, err
	}

	q := url.Values{}
	q.Set("steps", "true")
	q.Set("geometries", "geojson")
	q.Set("access_token", c.token)
	endpoint := fmt.Sprintf("%s/directions/v5/mapbox/%s/%s;%s?%s",
		c.baseURL, profile, geo.FormatCoord(from), geo.FormatCoord(to), q.Encode())

	var resp directionsResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		c.countDirections(profile, "error")
		return Route{}, fmt.Errorf("directions: %w", err)
	}
	if len(resp.Routes) == 0 || resp.Routes[0].Geometry == nil {
		c.countDirections(profile, "no_route")
		return Route{}, ErrNoRoute
	}

	first := resp.Routes[0]
	line, ok := first.Geometry.Coordinates.(orb.LineString)
	if !ok || len(line) == 0 {
		c.countDirections(profile, "no_route")
		return Route{}, ErrNoRoute
	}

	c.countDirections(profile, "ok")
	return Route{
		Profile:     profile,
		Coordinates: line,
		DistanceM:   first.Distance,
		DurationS:   first.Duration,
	}, nil
}

// Search returns up to five places matching query inside the bounding box,
// biased towards proximity when given. Short queries return no results.
func (c *Client) Search(ctx context.Context, query string, proximity *orb.Point) ([]Place, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryLength {
		return []Place{}, nil
	}
	if !c.Configured() {
		return nil, ErrMissingToken
	}

	key := searchKey(query, proximity)
	if cached, ok := c.cache.Get(key); ok {
		if c.metrics != nil {
			c.metrics.SearchCacheHits.Inc()
		}
		return cached.([]Place), nil
	}
	if c.metrics != nil {
		c.metrics.SearchCacheMisses.Inc()
	}

	// The shared lookup outlives any single caller; it is bounded by the
	// client timeout instead.
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		places, err := c.search(shared, query, proximity)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, places)
		return places, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Place), nil
}

func (c *Client) search(ctx context.Context, query string, proximity *orb.Point) ([]Place, error) {
	q := url.Values{}
	q.Set("access_token", c.token)
	q.Set("autocomplete", "true")
	q.Set("limit", fmt.Sprint(searchLimit))
	if !c.bounds.IsZero() {
		q.Set("bbox", geo.FormatBBox(c.bounds))
	}
	if proximity != nil {
		q.Set("proximity", geo.FormatCoord(*proximity))
	}
	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json?%s", c.baseURL, url.PathEscape(query), q.Encode())

	var resp geocodingResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		c.countSearch("error")
		return nil, fmt.Errorf("geocoding: %w", err)
	}
	c.countSearch("ok")

	places := make([]Place, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Center) < 2 {
			continue
		}
		places = append(places, Place{
			Center:    orb.Point{f.Center[0], f.Center[1]},
			Text:      f.Text,
			PlaceName: f.PlaceName,
		})
	}
	return places, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) countDirections(profile Profile, outcome string) {
	if c.metrics != nil {
		c.metrics.DirectionsRequestsTotal.WithLabelValues(string(profile), outcome).Inc()
	}
}

func (c *Client) countSearch(outcome string) {
	if c.metrics != nil {
		c.metrics.SearchRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func searchKey(query string, proximity *orb.Point) string {
	key := "search:" + strings.ToLower(query)
	if proximity != nil {
		// ~100 m buckets so nearby callers share cache entries.
		key += fmt.Sprintf(":%.3f,%.3f", proximity.Lon(), proximity.Lat())
	}
	return key
}
