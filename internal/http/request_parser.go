// Package http serves the khata JSON API.
//
// This file implements parsing of path ids, query parameters and request
// bodies into the typed inputs of the services.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"khata/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// PathID parses the named path wildcard as a positive id.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// ParseDateRange reads the optional start_date and end_date parameters.
func ParseDateRange(query url.Values) (core.DateRange, error) {
	var rng core.DateRange
	if v := strings.TrimSpace(query.Get("start_date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return rng, core.Invalid("start_date", "must be YYYY-MM-DD")
		}
		rng.Start = &d
	}
	if v := strings.TrimSpace(query.Get("end_date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return rng, core.Invalid("end_date", "must be YYYY-MM-DD")
		}
		rng.End = &d
	}
	return rng, rng.Validate()
}

// ParsePage reads page and limit. Absent values fall back to the defaults;
// present values must be positive and limit must not exceed the maximum.
func ParsePage(query url.Values) (core.Page, error) {
	page := core.Page{Number: 1, Limit: core.DefaultPageLimit}
	var err error
	if page.Number, err = ParseIntParam(query, "page", 1); err != nil {
		return page, err
	}
	if page.Number < 1 {
		return page, core.Invalid("page", "must be at least 1")
	}
	if page.Limit, err = ParseIntParam(query, "limit", core.DefaultPageLimit); err != nil {
		return page, err
	}
	if page.Limit < 1 || page.Limit > core.MaxPageLimit {
		return page, core.Invalid("limit", "must be between 1 and %d", core.MaxPageLimit)
	}
	return page, nil
}

// ParseIntParam reads an integer query parameter, returning def when absent.
func ParseIntParam(query url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalid(name, "must be an integer")
	}
	return n, nil
}

// ParseIDParam reads an optional positive id query parameter.
func ParseIDParam(query url.Values, name string) (int64, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// decodeJSON decodes the body into dst. Syntax errors and unknown shapes are
// bad requests; value errors from the domain types surface as validation
// errors on the offending field.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", errBadRequest)
	}
	return nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return core.Invalid(field, "has the wrong type")
	}
	if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidQuantity) || errors.Is(err, core.ErrInvalidDate) {
		return core.Invalid("", "%v", err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// RequestBodyParser reads a body once and serves fields from either JSON or
// form encoding. Login accepts both.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON when the content type or the first byte
// says so, and as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(p.contentType)
	if mediaType == "application/json" || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errBadRequest, p.err)
	}
	return p.err
}

// Get returns the first non-empty value among keys.
func (p *RequestBodyParser) Get(keys ...string) string {
	for _, key := range keys {
		if p.jsonData != nil {
			if val, ok := p.jsonData[key]; ok {
				if s := sanitizeInput(stringValue(val)); s != "" {
					return s
				}
			}
		}
		if p.formData != nil {
			if s := sanitizeInput(p.formData.Get(key)); s != "" {
				return s
			}
		}
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
