package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EmployeeStatus is the employment state reported by the metadata server.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "ACTIVE"
	EmployeeInactive EmployeeStatus = "INACTIVE"
	EmployeeResigned EmployeeStatus = "RESIGNED"
)

// Employee mirrors an employee record of the metadata server.
type Employee struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Position        string         `json:"position"`
	DepartmentID    string         `json:"departmentId"`
	DepartmentName  string         `json:"departmentName"`
	Status          EmployeeStatus `json:"status"`
	HireDate        string         `json:"hireDate"`
	ResignationDate string         `json:"resignationDate,omitempty"`
	PhoneNumber     string         `json:"phoneNumber,omitempty"`
	OfficeLocation  string         `json:"officeLocation,omitempty"`
}

// Department mirrors a department record of the metadata server.
type Department struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Code               string `json:"code"`
	ParentDepartmentID string `json:"parentDepartmentId,omitempty"`
	ManagerID          string `json:"managerId,omitempty"`
	Description        string `json:"description,omitempty"`
	Status             string `json:"status"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
}

// PageInfo is the pagination block of a metadata response.
type PageInfo struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	PageSize    int `json:"pageSize"`
	TotalItems  int `json:"totalItems"`
}

// ResponseMeta is the meta block of a metadata response.
type ResponseMeta struct {
	ProcessingTime float64 `json:"processingTime"`
	Timestamp      string  `json:"timestamp"`
}

// Page is one page of a paginated metadata response.
type Page[T any] struct {
	Data       []T          `json:"data"`
	Pagination PageInfo     `json:"pagination"`
	Meta       ResponseMeta `json:"meta"`
}

// HasNext reports whether further pages exist.
func (p Page[T]) HasNext() bool {
	return p.Pagination.CurrentPage < p.Pagination.TotalPages
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata %s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to the employee metadata server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a metadata client for baseURL authenticated by apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListEmployees fetches one page of employees. Pages start at 1.
func (c *Client) ListEmployees(ctx context.Context, page, pageSize int) (*Page[Employee], error) {
	var out Page[Employee]
	if err := c.get(ctx, "/api/employees", pageQuery(page, pageSize), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDepartments fetches one page of departments.
func (c *Client) ListDepartments(ctx context.Context, page, pageSize int) (*Page[Department], error) {
	var out Page[Department]
	if err := c.get(ctx, "/api/departments", pageQuery(page, pageSize), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEmployee fetches a single employee by id.
func (c *Client) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	var out struct {
		Data Employee `json:"data"`
	}
	if err := c.get(ctx, "/api/employees/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Health probes the metadata server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("metadata %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode metadata %s: %w", path, err)
	}
	return nil
}

func pageQuery(page, pageSize int) url.Values {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	return q
}
