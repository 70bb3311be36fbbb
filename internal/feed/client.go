// Package feed is the HTTP client for the booking backend: resources,
// schedules, the availability feed and reservation submission.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"spacebook/internal/availability"
	"spacebook/internal/models"
)

var (
	// ErrConflict is returned when the backend rejects a booking because the
	// block was taken in the meantime.
	ErrConflict = errors.New("booking conflict")

	// ErrNotBookable is returned when the requested start is not a bookable block.
	ErrNotBookable = errors.New("slot not bookable")

	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Client calls the backend API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// CreateReservationRequest is the body of POST /api/v1/reservations.
type CreateReservationRequest struct {
	ResourceID int64           `json:"resource_id"`
	Start      time.Time       `json:"start"`
	Customer   models.Customer `json:"customer"`
}

type availabilityResponse struct {
	ResourceID    int64                `json:"resource_id"`
	Date          string               `json:"date"`
	TimeReference string               `json:"time_reference"`
	Entries       []availability.Entry `json:"entries"`
}

type scheduleResponse struct {
	ResourceID int64                          `json:"resource_id"`
	Days       []models.DayScheduleDefinition `json:"days"`
}

type reservationResponse struct {
	Reservation models.Reservation `json:"reservation"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Resources returns all active resources.
func (c *Client) Resources(ctx context.Context) ([]models.Resource, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources", c.baseURL)
	cacheKey := "resources"
	var wrap struct {
		Resources []models.Resource `json:"resources"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Resources, nil
	}
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Resources, nil
}

// Schedule returns the seven day definitions of a resource.
func (c *Client) Schedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/schedule", c.baseURL, resourceID)
	cacheKey := fmt.Sprintf("schedule:%d", resourceID)
	var resp scheduleResponse

	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Days, nil
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", resourceID, err)
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Days, nil
}

// Availability queries the availability feed for resource/date (YYYY-MM-DD).
func (c *Client) Availability(ctx context.Context, resourceID int64, date string) ([]availability.Entry, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/availability?date=%s", c.baseURL, resourceID, url.QueryEscape(date))
	cacheKey := availabilityCacheKey(resourceID, date)
	var resp availabilityResponse

	if c.readCache(ctx, cacheKey, &resp) {
		return resp.Entries, nil
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("get availability %d/%s: %w", resourceID, date, err)
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Entries, nil
}

// Reservations returns occupying reservations of resource on date. Not cached.
func (c *Client) Reservations(ctx context.Context, resourceID int64, date string) ([]models.Reservation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/reservations?date=%s", c.baseURL, resourceID, url.QueryEscape(date))
	var wrap struct {
		Reservations []models.Reservation `json:"reservations"`
	}
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("list reservations %d/%s: %w", resourceID, date, err)
	}
	return wrap.Reservations, nil
}

// CreateReservation submits a booking. A 409 answer maps to ErrConflict and a
// 422 answer to ErrNotBookable.
func (c *Client) CreateReservation(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/reservations", c.baseURL)
	var resp reservationResponse
	err := c.doPost(ctx, endpoint, req, &resp)

	var se *StatusError
	switch {
	case err == nil:
		return &resp.Reservation, nil
	case errors.As(err, &se) && se.Code == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrConflict, se.Message)
	case errors.As(err, &se) && se.Code == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrNotBookable, se.Message)
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, se.Message)
	default:
		return nil, fmt.Errorf("create reservation: %w", err)
	}
}

// InvalidateAvailability drops the cached feed response for resource/date.
func (c *Client) InvalidateAvailability(ctx context.Context, resourceID int64, date string) {
	if c.redis == nil {
		return
	}
	key := availabilityCacheKey(resourceID, date)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("availability cache invalidation failed")
	}
}

// HealthCheck checks if the backend is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func availabilityCacheKey(resourceID int64, date string) string {
	return fmt.Sprintf("availability:%d:%s", resourceID, date)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}
