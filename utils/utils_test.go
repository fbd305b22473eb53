package utils_test

import (
	"errors"
	"testing"

	"github.com/bhoriuchi/graphql-ws-server/utils"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOperationAST(t *testing.T) {
	doc, err := utils.ParseQuery(`query A { hello } subscription B { watch }`)
	require.NoError(t, err)

	_, err = utils.GetOperationAST(doc, "")
	assert.ErrorIs(t, err, utils.ErrAmbiguousOperation)

	op, err := utils.GetOperationAST(doc, "B")
	require.NoError(t, err)
	assert.Equal(t, ast.OperationTypeSubscription, op.Operation)

	_, err = utils.GetOperationAST(doc, "C")
	assert.Error(t, err)
}

func TestParseQueryError(t *testing.T) {
	_, err := utils.ParseQuery(`{ hello`)
	assert.Error(t, err)
}

func TestGQLErrors(t *testing.T) {
	errs := utils.GQLErrors(errors.New("boom"))
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Message)

	errs = utils.GQLErrors("id cannot be blank")
	require.Len(t, errs, 1)
	assert.Equal(t, "id cannot be blank", errs[0].Message)

	errs = utils.GQLErrors([]error{errors.New("a"), errors.New("b")})
	assert.Len(t, errs, 2)
}

func TestGetOperationASTSingle(t *testing.T) {
	doc, err := utils.ParseQuery(`{ hello }`)
	require.NoError(t, err)

	op, err := utils.GetOperationAST(doc, "")
	require.NoError(t, err)
	assert.Equal(t, ast.OperationTypeQuery, op.Operation)

	doc, err = utils.ParseQuery(`fragment F on Query { hello }`)
	require.NoError(t, err)
	_, err = utils.GetOperationAST(doc, "")
	assert.ErrorIs(t, err, utils.ErrNoOperation)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", utils.Truncate("abc", 5))
	assert.Equal(t, "ab", utils.Truncate("abc", 2))
	// "é" is two bytes and is not split
	assert.Equal(t, "a", utils.Truncate("aé", 2))
}
