package tools

import (
	"sort"

	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
)

// requiredText rejects empty and whitespace-only strings for required fields.
const requiredText = `\S`

// Validate checks decoded arguments against the declared parameters: required
// fields, primitive types, enums and nested objects. Unknown fields are ignored.
func Validate(args map[string]any, params map[string]*schema.ParameterInfo) error {
	if args == nil {
		args = map[string]any{}
	}
	return objectSchema(params).VisitJSON(args)
}

// objectSchema 将工具参数声明转换为 OpenAPI schema
func objectSchema(params map[string]*schema.ParameterInfo) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Properties = make(openapi3.Schemas, len(params))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := params[name]
		if info == nil {
			continue
		}
		s.Properties[name] = openapi3.NewSchemaRef("", paramSchema(info))
		if info.Required {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func paramSchema(info *schema.ParameterInfo) *openapi3.Schema {
	if info.Type == schema.Object {
		s := objectSchema(info.SubParams)
		s.Description = info.Desc
		s.Nullable = !info.Required
		return s
	}

	s := &openapi3.Schema{
		Type:        string(info.Type),
		Description: info.Desc,
		Nullable:    !info.Required,
	}
	switch info.Type {
	case schema.String:
		if info.Required {
			s.Pattern = requiredText
		}
		for _, v := range info.Enum {
			s.Enum = append(s.Enum, v)
		}
	case schema.Array:
		if info.ElemInfo != nil {
			s.Items = openapi3.NewSchemaRef("", paramSchema(info.ElemInfo))
		}
	}
	return s
}
