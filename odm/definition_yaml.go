package odm

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NamedSchema is a schema loaded from a YAML definition together with its model name.
type NamedSchema struct {
	Name   string
	Schema *Schema
}

type yamlSchemaFile struct {
	Name    string        `yaml:"name"`
	Options yamlOptions   `yaml:"options"`
	Fields  yaml.Node     `yaml:"fields"`
	Indexes []yamlIndexes `yaml:"indexes"`
}

type yamlOptions struct {
	Timestamps bool   `yaml:"timestamps"`
	Strict     *bool  `yaml:"strict"`
	Collection string `yaml:"collection"`
}

type yamlIndexes struct {
	Keys   yaml.Node `yaml:"keys"`
	Name   string    `yaml:"name"`
	Unique bool      `yaml:"unique"`
	Sparse bool      `yaml:"sparse"`
}

// ParseYAMLSchema builds a schema from a YAML definition. Field order follows the document.
//
//	name: User
//	options:
//	  timestamps: true
//	fields:
//	  name: {type: string, required: true}
//	  email: {type: string, validate: email, unique: true}
//	  tags: [string]
//	  address:
//	    city: string
//	indexes:
//	  - keys: {name: 1, created_at: -1}
//
// Validators can only be referenced by their registered name.
func ParseYAMLSchema(data []byte) (NamedSchema, error) {
	var file yamlSchemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return NamedSchema{}, errors.Join(ErrInvalidDefinition, err)
	}

	def, err := definitionFromNode(&file.Fields)
	if err != nil {
		return NamedSchema{}, err
	}

	var opts []SchemaOption
	if file.Options.Timestamps {
		opts = append(opts, WithTimestamps())
	}

	if file.Options.Strict != nil {
		opts = append(opts, WithStrict(*file.Options.Strict))
	}

	if file.Options.Collection != "" {
		opts = append(opts, WithCollection(file.Options.Collection))
	}

	schema, err := NewSchema(def, opts...)
	if err != nil {
		return NamedSchema{}, err
	}

	for i, index := range file.Indexes {
		keys, err := indexKeysFromNode(&index.Keys)
		if err != nil {
			return NamedSchema{}, fmt.Errorf("index %d: %w", i, err)
		}

		options := IndexOptions{Name: index.Name, Unique: index.Unique, Sparse: index.Sparse}
		if err := schema.Index(keys, options); err != nil {
			return NamedSchema{}, fmt.Errorf("index %d: %w", i, err)
		}
	}

	return NamedSchema{Name: file.Name, Schema: schema}, nil
}

func definitionFromNode(node *yaml.Node) (Definition, error) {
	if node.Kind == 0 {
		return Definition{}, nil
	}

	value, err := valueFromNode(node)
	if err != nil {
		return nil, err
	}

	def, ok := value.(Definition)
	if !ok {
		return nil, fmt.Errorf("%w: fields must be a mapping of names to field specs", ErrInvalidDefinition)
	}

	return def, nil
}

// valueFromNode turns a YAML node into the Go form of the definition grammar. Mappings without
// a "type" key become ordered Definitions.
func valueFromNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return valueFromNode(node.Content[0])

	case yaml.AliasNode:
		return valueFromNode(node.Alias)

	case yaml.SequenceNode:
		items := make([]any, len(node.Content))
		for i, child := range node.Content {
			item, err := valueFromNode(child)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil

	case yaml.MappingNode:
		return mappingFromNode(node)

	default:
		var scalar any
		if err := node.Decode(&scalar); err != nil {
			return nil, errors.Join(ErrInvalidDefinition, err)
		}
		return scalar, nil
	}
}

func mappingFromNode(node *yaml.Node) (any, error) {
	hasType := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == optType {
			hasType = true
		}
	}

	if hasType {
		mapping := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			value, err := valueFromNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			mapping[node.Content[i].Value] = value
		}

		return mapping, nil
	}

	def := make(Definition, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		value, err := valueFromNode(node.Content[i+1])
		if err != nil {
			return nil, err
		}
		def = append(def, F(node.Content[i].Value, value))
	}

	return def, nil
}

func indexKeysFromNode(node *yaml.Node) (IndexKeys, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: index keys must be a mapping of field to 1 or -1", ErrInvalidDefinition)
	}

	keys := make(IndexKeys, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var direction int
		if err := node.Content[i+1].Decode(&direction); err != nil || (direction != Ascending && direction != Descending) {
			return nil, fmt.Errorf("%w: invalid direction for index key %q", ErrInvalidDefinition, node.Content[i].Value)
		}

		keys = append(keys, SortField{Field: node.Content[i].Value, Direction: direction})
	}

	return keys, nil
}
