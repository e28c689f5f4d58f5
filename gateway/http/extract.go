package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Raven-tu/expo-http-server/errors"
	"github.com/Raven-tu/expo-http-server/gateway"
)

// buildRequestEvent serializes one inbound request into the outbound
// notification record. Headers, parameters, and cookies each become an
// independently JSON-encoded string→string map.
func buildRequestEvent(route gateway.Route, r *http.Request, body []byte) (gateway.RequestEvent, error) {
	headersJSON, err := marshalMap(headerMap(r))
	if err != nil {
		return gateway.RequestEvent{}, errors.WrapInvalid(err, "Gateway", "buildRequestEvent",
			"serialize headers")
	}

	paramsJSON, err := marshalMap(paramMap(route, r))
	if err != nil {
		return gateway.RequestEvent{}, errors.WrapInvalid(err, "Gateway", "buildRequestEvent",
			"serialize params")
	}

	cookiesJSON, err := marshalMap(cookieMap(r))
	if err != nil {
		return gateway.RequestEvent{}, errors.WrapInvalid(err, "Gateway", "buildRequestEvent",
			"serialize cookies")
	}

	return gateway.RequestEvent{
		UUID:        route.CorrelationID,
		Method:      r.Method,
		Path:        r.URL.Path,
		Body:        string(body),
		HeadersJSON: headersJSON,
		ParamsJSON:  paramsJSON,
		CookiesJSON: cookiesJSON,
	}, nil
}

func marshalMap(m map[string]string) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// headerMap flattens request headers. Repeated headers are joined with a
// comma, matching how they would appear in a single header line.
func headerMap(r *http.Request) map[string]string {
	m := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		m[key] = strings.Join(values, ", ")
	}
	return m
}

// paramMap merges query parameters and route path parameters. Repeated
// query keys resolve last-write-wins, mirroring the cookie policy.
func paramMap(route gateway.Route, r *http.Request) map[string]string {
	m := make(map[string]string)

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			m[key] = values[len(values)-1]
		}
	}

	for _, name := range wildcardNames(route.Path) {
		if value := r.PathValue(name); value != "" {
			m[name] = value
		}
	}

	return m
}

// cookieMap flattens request cookies; name collisions resolve
// last-write-wins.
func cookieMap(r *http.Request) map[string]string {
	m := make(map[string]string)
	for _, cookie := range r.Cookies() {
		m[cookie.Name] = cookie.Value
	}
	return m
}

// wildcardNames extracts {name} and {name...} segments from a route path
func wildcardNames(path string) []string {
	var names []string
	for _, segment := range strings.Split(path, "/") {
		if len(segment) > 1 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(segment, "{"), "}")
			name = strings.TrimSuffix(name, "...")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
