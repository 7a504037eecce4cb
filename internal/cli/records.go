package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/espalier/model"
)

// readRecords reads a JSON object or an array of objects from path, or from
// stdin when path is "-".
func readRecords(path string, stdin io.Reader) ([]model.Record, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return parseRecords(data)
}

func parseRecords(data []byte) ([]model.Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no input records")
	}

	var records []model.Record
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
	} else {
		var r model.Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		records = []model.Record{r}
	}
	for _, r := range records {
		normalizeJSON(r)
	}
	return records, nil
}

// normalizeJSON turns integral JSON numbers into int64, recursively.
func normalizeJSON(record map[string]any) {
	for k, v := range record {
		record[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
	case map[string]any:
		normalizeJSON(n)
	case []any:
		for i := range n {
			n[i] = normalizeValue(n[i])
		}
	}
	return v
}

// parseValues decodes a JSON object of expression placeholders to attribute
// values.
func parseValues(s string) (map[string]types.AttributeValue, error) {
	if s == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("parse values: %w", err)
	}
	normalizeJSON(raw)
	return attributevalue.MarshalMap(raw)
}

// parseNames decodes a JSON object of expression name placeholders.
func parseNames(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var names map[string]string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("parse names: %w", err)
	}
	return names, nil
}

func marshalRecord(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
