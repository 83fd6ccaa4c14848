package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"legalscan/pkg/fillerr"
	"legalscan/pkg/placeholder"
	"legalscan/pkg/schema"
)

type answerItem struct {
	Placeholder string `yaml:"placeholder"`
	Answer      string `yaml:"answer"`
	Index       *int   `yaml:"index"`
}

// readAnswerRoot parses a JSON or YAML answers file and returns its top node.
func readAnswerRoot(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fillerr.Wrap(fillerr.MalformedInput, path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fillerr.New(fillerr.MalformedInput, path, "answers file is empty")
	}
	return doc.Content[0], nil
}

// loadAnswers reads free-form answers: a list of {placeholder, answer, index}
// or a mapping whose key order is the answer order.
func loadAnswers(path string) ([]placeholder.AnswerEntry, error) {
	root, err := readAnswerRoot(path)
	if err != nil {
		return nil, err
	}
	switch root.Kind {
	case yaml.SequenceNode:
		var items []answerItem
		if err := root.Decode(&items); err != nil {
			return nil, fillerr.Wrap(fillerr.MalformedInput, path, err)
		}
		out := make([]placeholder.AnswerEntry, 0, len(items))
		for i, it := range items {
			idx := i
			if it.Index != nil {
				idx = *it.Index
			}
			out = append(out, placeholder.AnswerEntry{Placeholder: it.Placeholder, Answer: it.Answer, Index: idx})
		}
		return out, nil
	case yaml.MappingNode:
		var pairs []placeholder.Pair
		for i := 0; i+1 < len(root.Content); i += 2 {
			var answer string
			if err := root.Content[i+1].Decode(&answer); err != nil {
				return nil, fillerr.Wrap(fillerr.MalformedInput, root.Content[i].Value, err)
			}
			pairs = append(pairs, placeholder.Pair{Key: root.Content[i].Value, Answer: answer})
		}
		return placeholder.EntriesFromPairs(pairs), nil
	default:
		return nil, fillerr.New(fillerr.MalformedInput, path, "answers must be a list or a mapping")
	}
}

// loadFamilyAnswers reads {field: value} for a predefined template family.
func loadFamilyAnswers(path string, sch *schema.Schema) ([]placeholder.AnswerEntry, error) {
	root, err := readAnswerRoot(path)
	if err != nil {
		return nil, err
	}
	if root.Kind != yaml.MappingNode {
		return nil, fillerr.New(fillerr.MalformedInput, path, "family answers must be a mapping of field to value")
	}
	var values map[string]string
	if err := root.Decode(&values); err != nil {
		return nil, fillerr.Wrap(fillerr.MalformedInput, path, err)
	}
	return sch.Entries(values)
}

func familySchema(family, schemaDir string) (*schema.Schema, error) {
	reg, err := schema.Default()
	if err != nil {
		return nil, err
	}
	if schemaDir != "" {
		if err := reg.LoadDir(schemaDir); err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
	}
	sch, ok := reg.Get(family)
	if !ok {
		return nil, errors.New("unknown template family " + family)
	}
	return sch, nil
}
