package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type jsonDataset struct {
	Name              string          `json:"name,omitempty"`
	Relevance         []float64       `json:"relevance"`
	Ranking           []int           `json:"ranking"`
	SensitiveFeatures json.RawMessage `json:"sensitive_features,omitempty"`
	Metrics           json.RawMessage `json:"metrics,omitempty"`
}

// UnmarshalJSON decodes a dataset, keeping the key order of
// sensitive_features and metrics. Non-string labels keep their JSON text.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var raw jsonDataset
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var features []Feature
	err := eachMember(raw.SensitiveFeatures, "sensitive_features", func(name string, value json.RawMessage) error {
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			return fmt.Errorf("sensitive feature %q must be an array of labels: %w", name, err)
		}
		labels := make([]string, len(items))
		for i, item := range items {
			label, err := jsonLabel(item)
			if err != nil {
				return fmt.Errorf("sensitive feature %q item %d: %w", name, i, err)
			}
			labels[i] = label
		}
		features = append(features, Feature{Name: name, Labels: labels})
		return nil
	})
	if err != nil {
		return err
	}

	metrics, err := jsonMetrics(raw.Metrics)
	if err != nil {
		return err
	}

	d.Name = raw.Name
	d.Relevance = raw.Relevance
	d.Ranking = raw.Ranking
	d.SensitiveFeatures = features
	d.Metrics = metrics
	return nil
}

func jsonMetrics(raw json.RawMessage) ([]MetricSpec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var specs []MetricSpec
	if raw[0] == '[' {
		var kinds []string
		if err := json.Unmarshal(raw, &kinds); err != nil {
			return nil, fmt.Errorf("metrics must be an array of metric kinds: %w", err)
		}
		for _, k := range kinds {
			spec, err := parseMetricKind(k, k)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return specs, nil
	}

	err := eachMember(raw, "metrics", func(name string, value json.RawMessage) error {
		var kind string
		if err := json.Unmarshal(value, &kind); err != nil {
			return fmt.Errorf("metric %q must name a metric kind: %w", name, err)
		}
		spec, err := parseMetricKind(name, kind)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
		return nil
	})
	return specs, err
}

// eachMember calls fn for every member of a JSON object in document order.
func eachMember(raw json.RawMessage, field string, fn func(key string, value json.RawMessage) error) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%s must be an object", field)
	}

	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if seen[key] {
			return fmt.Errorf("%s: key %q repeated", field, key)
		}
		seen[key] = true

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

func jsonLabel(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "", fmt.Errorf("label must not be null")
	case raw[0] == '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case raw[0] == '[' || raw[0] == '{':
		return "", fmt.Errorf("label must be a scalar")
	default:
		return string(raw), nil
	}
}

// orderedObject marshals as a JSON object with members in slice order.
type orderedObject []member

type member struct {
	key   string
	value any
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON keeps feature and metric order.
func (d Dataset) MarshalJSON() ([]byte, error) {
	out := struct {
		Name              string        `json:"name,omitempty"`
		Relevance         []float64     `json:"relevance"`
		Ranking           []int         `json:"ranking"`
		SensitiveFeatures orderedObject `json:"sensitive_features"`
		Metrics           orderedObject `json:"metrics,omitempty"`
	}{
		Name:      d.Name,
		Relevance: d.Relevance,
		Ranking:   d.Ranking,
	}

	out.SensitiveFeatures = make(orderedObject, 0, len(d.SensitiveFeatures))
	for _, f := range d.SensitiveFeatures {
		out.SensitiveFeatures = append(out.SensitiveFeatures, member{key: f.Name, value: f.Labels})
	}
	for _, m := range d.Metrics {
		out.Metrics = append(out.Metrics, member{key: m.Name, value: m.Kind.String()})
	}
	return json.Marshal(out)
}
