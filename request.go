package tracking

import (
	"net/url"
	"strings"
)

// ObservedRequest is an ergonomic wrapper around one intercepted network
// call as delivered by a browser collaborator.
type ObservedRequest struct {
	rawURL    string
	method    string
	body      string
	parsedURL *url.URL
}

// NewObservedRequest creates an ObservedRequest from raw interception data.
func NewObservedRequest(rawURL, method, body string) *ObservedRequest {
	parsed, _ := url.Parse(rawURL)
	return &ObservedRequest{
		rawURL:    rawURL,
		method:    method,
		body:      body,
		parsedURL: parsed,
	}
}

// URL returns the full request URL including query string.
func (r *ObservedRequest) URL() string {
	return r.rawURL
}

// Method returns the HTTP method.
func (r *ObservedRequest) Method() string {
	return r.method
}

// IsPost checks if this is a POST request.
func (r *ObservedRequest) IsPost() bool {
	return strings.EqualFold(r.method, "POST")
}

// IsGet checks if this is a GET request.
func (r *ObservedRequest) IsGet() bool {
	return strings.EqualFold(r.method, "GET")
}

// Host returns the URL host, without port.
func (r *ObservedRequest) Host() string {
	if r.parsedURL == nil {
		return ""
	}
	return r.parsedURL.Hostname()
}

// PathOnly returns just the path without query string.
func (r *ObservedRequest) PathOnly() string {
	if r.parsedURL != nil {
		return r.parsedURL.Path
	}
	return r.rawURL
}

// QueryString returns the raw query string.
func (r *ObservedRequest) QueryString() string {
	if r.parsedURL != nil {
		return r.parsedURL.RawQuery
	}
	return ""
}

// Query returns a single query parameter value.
func (r *ObservedRequest) Query(name string) string {
	if r.parsedURL == nil {
		return ""
	}
	return r.parsedURL.Query().Get(name)
}

// Body returns the raw POST body.
func (r *ObservedRequest) Body() string {
	return r.body
}

// String returns a string representation of the request.
func (r *ObservedRequest) String() string {
	return "ObservedRequest(" + r.method + " " + r.rawURL + ")"
}
