// Package query decodes and validates encoded chart queries.
//
// An encoded query is the base64 form of a JSON document
// {config: {mode, width, height}, chart: {type, data}}. Decoding is pure:
// the same input always yields the same document or the same error.
package query

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/justapithecus/chartd/types"
)

// Client-visible validation messages.
const (
	MsgRequired      = "query required"
	MsgEmptyData     = "data cannot be empty"
	MsgEmptyDocument = "query document is empty"
	MsgNotObject     = "query document must be an object"
)

// encodings are tried in order. Browsers produce padded standard base64
// (btoa), other clients often send the URL-safe or unpadded forms.
var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Decode validates raw and returns the decoded chart query.
// All failures are *types.Error with KindValidation.
func Decode(raw string) (*types.ChartQuery, error) {
	if raw == "" {
		return nil, types.NewValidationError(MsgRequired, nil)
	}

	payload, err := decodeBase64(raw)
	if err != nil {
		return nil, types.NewValidationError("", err)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, types.NewValidationError(MsgEmptyDocument, nil)
	}
	if trimmed[0] != '{' {
		return nil, types.NewValidationError(MsgNotObject, nil)
	}

	var doc types.ChartQuery
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, types.NewValidationError("", err)
	}

	if len(doc.Chart.Data) == 0 {
		return nil, types.NewValidationError(MsgEmptyData, nil)
	}

	return &doc, nil
}

// Encode returns the canonical encoded form of doc (padded standard base64 of
// its JSON). Decode(Encode(doc)) round-trips for any valid document.
func Encode(doc *types.ChartQuery) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Normalize returns raw in padded standard base64, the only form the chart UI
// decodes (atob). Cache keys are still derived from raw itself.
func Normalize(raw string) (string, error) {
	payload, err := decodeBase64(raw)
	if err != nil {
		return "", types.NewValidationError("", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// decodeBase64 restores '+' lost to form decoding and tries each alphabet.
// The error of the first (standard) alphabet is reported on failure.
func decodeBase64(raw string) ([]byte, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "+")

	var firstErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
