package node

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tributarydb/tributary/internal/core/query"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/errdefs"
)

// attributeInput is the parsed form of one attribute field. Raw values set
// only Value; the structured form {value, source, owner, is_visible,
// is_protected} can set any subset.
type attributeInput struct {
	Value       interface{}
	HasValue    bool
	Source      string
	HasSource   bool
	Owner       string
	HasOwner    bool
	IsVisible   *bool
	IsProtected *bool
}

// relationshipInput is the parsed form of one relationship peer. Raw string
// values set only PeerID; the structured form {id, _relation__is_visible,
// _relation__is_protected} can set the flags too.
type relationshipInput struct {
	PeerID      string
	IsVisible   *bool
	IsProtected *bool
}

var attributeInputKeys = map[string]struct{}{
	"value":        {},
	"source":       {},
	"owner":        {},
	"is_visible":   {},
	"is_protected": {},
}

func parseAttributeInput(kind, name string, raw interface{}) (attributeInput, error) {
	structured, ok := raw.(map[string]interface{})
	if !ok {
		return attributeInput{Value: raw, HasValue: true}, nil
	}
	// A map only counts as the structured form when it uses the reserved
	// keys; anything else is a raw value for Any/List attributes.
	isStructured := false
	for key := range structured {
		if _, known := attributeInputKeys[key]; known {
			isStructured = true
			break
		}
	}
	if !isStructured {
		return attributeInput{Value: raw, HasValue: true}, nil
	}

	var input attributeInput
	for key, value := range structured {
		switch key {
		case "value":
			input.Value = value
			input.HasValue = true
		case "source":
			id, err := stringField(kind, name, key, value)
			if err != nil {
				return attributeInput{}, err
			}
			input.Source = id
			input.HasSource = true
		case "owner":
			id, err := stringField(kind, name, key, value)
			if err != nil {
				return attributeInput{}, err
			}
			input.Owner = id
			input.HasOwner = true
		case "is_visible":
			flag, err := boolField(kind, name, key, value)
			if err != nil {
				return attributeInput{}, err
			}
			input.IsVisible = &flag
		case "is_protected":
			flag, err := boolField(kind, name, key, value)
			if err != nil {
				return attributeInput{}, err
			}
			input.IsProtected = &flag
		default:
			return attributeInput{}, errdefs.Newf(errdefs.KindValidation, "%s is not a valid input for %s.%s", key, kind, name)
		}
	}
	return input, nil
}

func parseRelationshipInput(kind, name string, raw interface{}) (relationshipInput, error) {
	switch v := raw.(type) {
	case string:
		return relationshipInput{PeerID: v}, nil
	case map[string]interface{}:
		var input relationshipInput
		for key, value := range v {
			switch key {
			case "id":
				id, err := stringField(kind, name, key, value)
				if err != nil {
					return relationshipInput{}, err
				}
				input.PeerID = id
			case "_relation__is_visible":
				flag, err := boolField(kind, name, key, value)
				if err != nil {
					return relationshipInput{}, err
				}
				input.IsVisible = &flag
			case "_relation__is_protected":
				flag, err := boolField(kind, name, key, value)
				if err != nil {
					return relationshipInput{}, err
				}
				input.IsProtected = &flag
			default:
				return relationshipInput{}, errdefs.Newf(errdefs.KindValidation, "%s is not a valid input for %s.%s", key, kind, name)
			}
		}
		if input.PeerID == "" {
			return relationshipInput{}, errdefs.Newf(errdefs.KindValidation, "id is mandatory for %s.%s", kind, name)
		}
		return input, nil
	default:
		return relationshipInput{}, errdefs.Newf(errdefs.KindValidation, "%v is not a valid peer for %s.%s", raw, kind, name)
	}
}

func parseRelationshipInputs(spec *schema.RelationshipSchema, kind string, raw interface{}) ([]relationshipInput, error) {
	items, isList := raw.([]interface{})
	if !isList {
		items = []interface{}{raw}
	}
	if spec.Cardinality == schema.CardinalityOne && len(items) > 1 {
		return nil, errdefs.Newf(errdefs.KindValidation, "multiple peers provided for %s.%s (cardinality one)", kind, spec.Name)
	}
	inputs := make([]relationshipInput, 0, len(items))
	for _, item := range items {
		input, err := parseRelationshipInput(kind, spec.Name, item)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func stringField(kind, name, key string, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", errdefs.Newf(errdefs.KindValidation, "%s must be a string for %s.%s", key, kind, name)
	}
	return s, nil
}

func boolField(kind, name, key string, value interface{}) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, errdefs.Newf(errdefs.KindValidation, "%s must be a boolean for %s.%s", key, kind, name)
	}
	return b, nil
}

// checkValueKind enforces the value category of an attribute kind. Nil is
// always accepted; the mandatory check runs separately.
func checkValueKind(nodeKind string, spec *schema.AttributeSchema, value interface{}) error {
	if value == nil {
		return nil
	}
	valid := true
	switch schema.KindCategory(spec.Kind) {
	case schema.CategoryString:
		_, valid = value.(string)
	case schema.CategoryNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		default:
			valid = false
		}
	case schema.CategoryBoolean:
		_, valid = value.(bool)
	case schema.CategoryList:
		_, valid = value.([]interface{})
	}
	if !valid {
		return errdefs.Newf(errdefs.KindValidation, "%v is not a valid value for %s.%s", value, nodeKind, spec.Name)
	}
	return nil
}

// CreatePlan is a validated node creation: every schema attribute resolved
// to a concrete value (input, default, or null) and every relationship peer
// parsed. PeerIDs lists the referenced nodes whose existence the manager
// verifies before building the query.
type CreatePlan struct {
	Attributes    []query.AttributeCreate
	Relationships []query.RelationshipCreate
	PeerIDs       []string
}

// BuildCreatePlan validates user input against the node schema. Unknown
// fields and missing mandatory fields fail; attributes absent from the input
// are created with their schema default or a null value.
func BuildCreatePlan(s *schema.NodeSchema, input map[string]interface{}) (*CreatePlan, error) {
	for key := range input {
		if s.GetAttribute(key) == nil && s.GetRelationship(key) == nil {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is not a valid input for %s", key, s.Kind)
		}
	}

	plan := &CreatePlan{}

	for i := range s.Attributes {
		spec := &s.Attributes[i]
		create := query.AttributeCreate{
			UUID:      uuid.NewString(),
			Name:      spec.Name,
			IsVisible: true,
		}

		raw, provided := input[spec.Name]
		if provided {
			parsed, err := parseAttributeInput(s.Kind, spec.Name, raw)
			if err != nil {
				return nil, err
			}
			if parsed.HasValue {
				create.Value = parsed.Value
			}
			if parsed.HasSource {
				create.SourceID = parsed.Source
				plan.PeerIDs = append(plan.PeerIDs, parsed.Source)
			}
			if parsed.HasOwner {
				create.OwnerID = parsed.Owner
				plan.PeerIDs = append(plan.PeerIDs, parsed.Owner)
			}
			if parsed.IsVisible != nil {
				create.IsVisible = *parsed.IsVisible
			}
			if parsed.IsProtected != nil {
				create.IsProtected = *parsed.IsProtected
			}
		}
		if create.Value == nil && spec.Default != nil {
			create.Value = spec.Default
		}
		if create.Value == nil && !spec.Optional {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is mandatory for %s", spec.Name, s.Kind)
		}
		if err := checkValueKind(s.Kind, spec, create.Value); err != nil {
			return nil, err
		}
		plan.Attributes = append(plan.Attributes, create)
	}

	for i := range s.Relationships {
		spec := &s.Relationships[i]
		raw, provided := input[spec.Name]
		if !provided {
			if !spec.Optional {
				return nil, errdefs.Newf(errdefs.KindValidation, "%s is mandatory for %s", spec.Name, s.Kind)
			}
			continue
		}
		inputs, err := parseRelationshipInputs(spec, s.Kind, raw)
		if err != nil {
			return nil, err
		}
		if len(inputs) == 0 && !spec.Optional {
			return nil, errdefs.Newf(errdefs.KindValidation, "%s is mandatory for %s", spec.Name, s.Kind)
		}
		for _, in := range inputs {
			create := query.RelationshipCreate{
				UUID:       uuid.NewString(),
				Identifier: spec.Identifier,
				PeerID:     in.PeerID,
				IsVisible:  true,
			}
			if in.IsVisible != nil {
				create.IsVisible = *in.IsVisible
			}
			if in.IsProtected != nil {
				create.IsProtected = *in.IsProtected
			}
			plan.Relationships = append(plan.Relationships, create)
			plan.PeerIDs = append(plan.PeerIDs, in.PeerID)
		}
	}

	return plan, nil
}
