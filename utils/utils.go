// Package utils holds GraphQL document and error helpers shared by the
// executor and the protocol session.
package utils

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

var (
	ErrNoOperation        = errors.New("must provide an operation")
	ErrAmbiguousOperation = errors.New("must provide operation name if query contains multiple operations")
)

// ParseQuery parses a request document
func ParseQuery(query string) (*ast.Document, error) {
	return parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "GraphQL request",
		}),
	})
}

// GetOperationAST selects the operation to run. Without a name the
// document must hold exactly one operation.
func GetOperationAST(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	operations := []*ast.OperationDefinition{}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			operations = append(operations, op)
		}
	}

	if operationName == "" {
		switch len(operations) {
		case 0:
			return nil, ErrNoOperation
		case 1:
			return operations[0], nil
		}
		return nil, ErrAmbiguousOperation
	}

	for _, op := range operations {
		if name := op.GetName(); name != nil && name.Value == operationName {
			return op, nil
		}
	}

	return nil, fmt.Errorf("unknown operation named %q", operationName)
}

// GQLErrors converts strings, errors and graphql error lists into
// formatted errors suitable for an error payload
func GQLErrors(in interface{}) gqlerrors.FormattedErrors {
	switch v := in.(type) {
	case gqlerrors.FormattedErrors:
		return v
	case []gqlerrors.FormattedError:
		return v
	case gqlerrors.FormattedError:
		return gqlerrors.FormattedErrors{v}
	case []gqlerrors.Error:
		errs := make(gqlerrors.FormattedErrors, 0, len(v))
		for _, err := range v {
			errs = append(errs, fromLocated(err))
		}
		return errs
	case []error:
		errs := make(gqlerrors.FormattedErrors, 0, len(v))
		for _, err := range v {
			errs = append(errs, gqlerrors.FormatError(err))
		}
		return errs
	case string:
		return gqlerrors.FormattedErrors{gqlerrors.FormatError(errors.New(v))}
	case error:
		return gqlerrors.FormattedErrors{gqlerrors.FormatError(v)}
	}

	return gqlerrors.FormattedErrors{gqlerrors.FormatError(errors.New("unspecified error"))}
}

func fromLocated(err gqlerrors.Error) gqlerrors.FormattedError {
	formatted := gqlerrors.FormatError(err.OriginalError)
	formatted.Message = err.Message
	formatted.Locations = err.Locations
	formatted.Path = err.Path
	return formatted
}

// Truncate shortens s to at most max bytes without splitting a rune
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
