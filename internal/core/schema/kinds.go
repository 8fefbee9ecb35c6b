package schema

// ValueCategory groups attribute kinds by the shape of their stored value.
type ValueCategory string

const (
	CategoryString  ValueCategory = "string"
	CategoryNumber  ValueCategory = "number"
	CategoryBoolean ValueCategory = "boolean"
	CategoryList    ValueCategory = "list"
	CategoryAny     ValueCategory = "any"
)

// attributeKinds maps every accepted attribute kind to its value category.
// String and Integer are deprecated aliases kept for older schema files.
var attributeKinds = map[string]ValueCategory{
	"ID":         CategoryString,
	"Text":       CategoryString,
	"TextArea":   CategoryString,
	"String":     CategoryString,
	"Email":      CategoryString,
	"URL":        CategoryString,
	"File":       CategoryString,
	"MacAddress": CategoryString,
	"Color":      CategoryString,
	"IPHost":     CategoryString,
	"IPNetwork":  CategoryString,
	"DateTime":   CategoryString,
	"Password":   CategoryString,
	"Bandwidth":  CategoryNumber,
	"Number":     CategoryNumber,
	"Integer":    CategoryNumber,
	"Boolean":    CategoryBoolean,
	"Checkbox":   CategoryBoolean,
	"List":       CategoryList,
	"Any":        CategoryAny,
}

// IsValidKind reports whether the attribute kind is recognized.
func IsValidKind(kind string) bool {
	_, ok := attributeKinds[kind]
	return ok
}

// KindCategory returns the value category for an attribute kind, or
// CategoryAny for unknown kinds.
func KindCategory(kind string) ValueCategory {
	if category, ok := attributeKinds[kind]; ok {
		return category
	}
	return CategoryAny
}
