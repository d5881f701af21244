package models

import (
	"bytes"
	"encoding/json"

	dErrors "loanops/pkg/domain-errors"
)

// Decode parses the persisted loan file shape, normalizes defaults, and
// enforces the record invariants. The returned error is an input error: the
// caller must not run the pipeline on a record that failed to decode.
func Decode(data []byte) (*LoanRecord, error) {
	var record LoanRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed loan file")
	}
	record.Normalize()
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return &record, nil
}

// Encode serializes the record back into the same shape Decode accepts.
// Statuses are emitted as their string tags; timestamps verbatim.
func Encode(record *LoanRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode loan record")
	}
	return buf.Bytes(), nil
}
