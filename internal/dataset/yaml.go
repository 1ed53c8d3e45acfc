package dataset

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlDataset struct {
	Name              string    `yaml:"name"`
	Relevance         []float64 `yaml:"relevance"`
	Ranking           []int     `yaml:"ranking"`
	SensitiveFeatures yaml.Node `yaml:"sensitive_features"`
	Metrics           yaml.Node `yaml:"metrics"`
}

func unmarshalYAML(data []byte, d *Dataset) error {
	var raw yamlDataset
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Name = raw.Name
	d.Relevance = raw.Relevance
	d.Ranking = raw.Ranking

	features, err := yamlFeatures(&raw.SensitiveFeatures)
	if err != nil {
		return err
	}
	d.SensitiveFeatures = features

	metrics, err := yamlMetrics(&raw.Metrics)
	if err != nil {
		return err
	}
	d.Metrics = metrics
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func yamlFeatures(n *yaml.Node) ([]Feature, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: sensitive_features must be a mapping of feature name to labels", n.Line)
	}

	features := make([]Feature, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := resolve(n.Content[i]), resolve(n.Content[i+1])
		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: sensitive feature %q must be a sequence of labels", value.Line, key.Value)
		}
		labels := make([]string, len(value.Content))
		for j, item := range value.Content {
			item = resolve(item)
			if item.Kind != yaml.ScalarNode || item.Tag == "!!null" {
				return nil, fmt.Errorf("line %d: sensitive feature %q item %d must be a scalar label", item.Line, key.Value, j)
			}
			labels[j] = item.Value
		}
		features = append(features, Feature{Name: key.Value, Labels: labels})
	}
	return features, nil
}

// yamlMetrics accepts either a mapping of display name to kind or a sequence
// of kinds reported under their own names.
func yamlMetrics(n *yaml.Node) ([]MetricSpec, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}

	var specs []MetricSpec
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := resolve(n.Content[i]), resolve(n.Content[i+1])
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: metric %q must name a metric kind", value.Line, key.Value)
			}
			spec, err := parseMetricKind(key.Value, value.Value)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			item = resolve(item)
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: metric must name a metric kind", item.Line)
			}
			spec, err := parseMetricKind(item.Value, item.Value)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	default:
		return nil, fmt.Errorf("line %d: metrics must be a mapping or a sequence", n.Line)
	}
	return specs, nil
}

// MarshalYAML keeps feature and metric order.
func (d Dataset) MarshalYAML() (any, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}

	add := func(key string, value any, flow bool) error {
		v := &yaml.Node{}
		if err := v.Encode(value); err != nil {
			return err
		}
		if flow {
			v.Style = yaml.FlowStyle
		}
		doc.Content = append(doc.Content, scalar(key), v)
		return nil
	}

	if d.Name != "" {
		doc.Content = append(doc.Content, scalar("name"), scalar(d.Name))
	}
	if err := add("relevance", d.Relevance, true); err != nil {
		return nil, err
	}
	if err := add("ranking", d.Ranking, true); err != nil {
		return nil, err
	}

	features := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range d.SensitiveFeatures {
		labels := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, l := range f.Labels {
			labels.Content = append(labels.Content, scalar(l))
		}
		features.Content = append(features.Content, scalar(f.Name), labels)
	}
	doc.Content = append(doc.Content, scalar("sensitive_features"), features)

	if len(d.Metrics) > 0 {
		metrics := &yaml.Node{Kind: yaml.MappingNode}
		for _, m := range d.Metrics {
			metrics.Content = append(metrics.Content, scalar(m.Name), scalar(m.Kind.String()))
		}
		doc.Content = append(doc.Content, scalar("metrics"), metrics)
	}
	return doc, nil
}

// scalar builds a string node; labels such as "1" or "yes" stay strings on
// the way back in.
func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func encodeYAML(w io.Writer, d *Dataset) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}
