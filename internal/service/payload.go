package service

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"formflow/internal/apperr"
	"formflow/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payload is the free-form JSON object a submission carries.
type Payload map[string]any

const (
	fieldCustomerName   = "customerName"
	fieldSerialNumber   = "serialNumber"
	fieldTotalDiscount  = "totalDiscount"
	fieldDepartment     = "responsibleDepartment"
	fieldDepartmentsAlt = "responsibleDepartments"
)

func decodePayload(raw datatypes.JSON) (Payload, error) {
	p := Payload{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode submission data: %w", err)
	}
	return p, nil
}

func (p Payload) encode() (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode submission data: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// clean returns a copy without the reserved signature key.
func (p Payload) clean() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if k == model.SignatureKey {
			continue
		}
		out[k] = v
	}
	return out
}

func (p Payload) merge(patch Payload) {
	for k, v := range patch.clean() {
		p[k] = v
	}
}

func (p Payload) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// departmentEntries returns the department names under either key. Entries that
// are not strings are rejected rather than dropped.
func (p Payload) departmentEntries() ([]string, error) {
	raw, ok := p[fieldDepartment]
	if !ok {
		raw = p[fieldDepartmentsAlt]
	}
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	switch v := raw.(type) {
	case nil:
	case string:
		add(v)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, apperr.Validation("unknown department %v", item)
			}
			add(s)
		}
	default:
		return nil, apperr.Validation("unknown department %v", v)
	}
	return out, nil
}

// Departments accepts a single name or a list under either department key.
// Malformed values yield no departments.
func (p Payload) Departments() []string {
	out, err := p.departmentEntries()
	if err != nil {
		return nil
	}
	return out
}

// Discount parses totalDiscount. Missing or malformed values count as zero.
func (p Payload) Discount() decimal.Decimal {
	switch v := p[fieldTotalDiscount].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// Hash is the sha256 of the canonical JSON form of the payload without its signature.
func (p Payload) Hash() (string, error) {
	raw, err := json.Marshal(p.clean())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// validateSubmission checks the required identity fields and the department names.
func validateSubmission(p Payload, known map[string]bool) (serial, customer string, err error) {
	serial, customer = p.str(fieldSerialNumber), p.str(fieldCustomerName)
	if serial == "" {
		return "", "", apperr.Validation("serialNumber is required")
	}
	if customer == "" {
		return "", "", apperr.Validation("customerName is required")
	}
	departments, err := p.departmentEntries()
	if err != nil {
		return "", "", err
	}
	if len(known) > 0 {
		for _, d := range departments {
			if !known[d] {
				return "", "", apperr.Validation("unknown department %q", d)
			}
		}
	}
	return serial, customer, nil
}

const maxSignatureBytes = 2 << 20

// parseSignatureImage validates a data:image/...;base64 URI and returns its mime type.
func parseSignatureImage(uri string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", apperr.Validation("signature must be a data URI")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", apperr.Validation("signature must be a data URI")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok || !strings.HasPrefix(mime, "image/") {
		return "", apperr.Validation("signature must be a base64 encoded image")
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", apperr.Validation("signature is not valid base64")
	}
	if len(decoded) == 0 {
		return "", apperr.Validation("signature image is empty")
	}
	if len(decoded) > maxSignatureBytes {
		return "", apperr.Validation("signature image is too large")
	}
	return mime, nil
}
