package compiler_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dariomnz/etherc/lang/ast"
	"github.com/dariomnz/etherc/lang/compiler"
	"github.com/dariomnz/etherc/lang/vm"
)

var i32 = ast.DataType{Kind: ast.I32}

func intLit(v int64) *ast.IntLit { return &ast.IntLit{Value: v, Type: &i32} }

func runChunk(t *testing.T, chunk *ast.Chunk) vm.Value {
	t.Helper()
	prog, err := compiler.Generate(chunk)
	require.NoError(t, err)

	var stdout bytes.Buffer
	machine := vm.New(prog, 4, &stdout, &stdout, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := machine.Run(ctx)
	require.NoError(t, err)
	return result
}

// TestGenerateFactorial builds fact(n) = n < 2 ? 1 : n * fact(n-1) and
// main() = return fact(5), entirely from the AST, exercising recursive CALL
// generation and if/else lowering.
func TestGenerateFactorial(t *testing.T) {
	nParam := ast.Param{Name: "n", Type: i32}
	nVar := &ast.Variable{Name: "n", Type: &i32}

	fact := &ast.Function{
		Name:       "fact",
		Params:     []ast.Param{nParam},
		ReturnType: i32,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.If{
				Cond: &ast.Binary{Op: ast.Lt, Left: nVar, Right: intLit(2), Type: &i32},
				Then: &ast.Block{Stmts: []ast.Stmt{
					&ast.Return{Value: intLit(1)},
				}},
				Else: &ast.Block{Stmts: []ast.Stmt{
					&ast.Return{Value: &ast.Binary{
						Op:   ast.Mul,
						Left: nVar,
						Right: &ast.Call{
							Name: "fact",
							Args: []ast.Expr{&ast.Binary{Op: ast.Sub, Left: nVar, Right: intLit(1), Type: &i32}},
							Type: &i32,
						},
						Type: &i32,
					}},
				}},
			},
		}},
	}

	main := &ast.Function{
		Name:       "main",
		ReturnType: i32,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.Call{Name: "fact", Args: []ast.Expr{intLit(5)}, Type: &i32}},
		}},
	}

	chunk := &ast.Chunk{Functions: []*ast.Function{fact, main}}
	result := runChunk(t, chunk)
	require.Equal(t, int64(120), result.AsInt())
}

// TestGenerateForLoopSum builds a for loop summing 1..9 in main, exercising
// VarDecl slot allocation, For lowering and IncDec on a plain local.
func TestGenerateForLoopSum(t *testing.T) {
	iVar := &ast.Variable{Name: "i", Type: &i32}
	accVar := &ast.Variable{Name: "acc", Type: &i32}

	main := &ast.Function{
		Name:       "main",
		ReturnType: i32,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "acc", Type: i32, Init: intLit(0)},
			&ast.For{
				Init: &ast.VarDecl{Name: "i", Type: i32, Init: intLit(1)},
				Cond: &ast.Binary{Op: ast.Le, Left: iVar, Right: intLit(9), Type: &i32},
				Post: &ast.ExprStmt{X: &ast.IncDec{LValue: iVar, Inc: true}},
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.ExprStmt{X: &ast.Assign{
						LValue: accVar,
						Value:  &ast.Binary{Op: ast.Add, Left: accVar, Right: iVar, Type: &i32},
					}},
				}},
			},
			&ast.Return{Value: accVar},
		}},
	}

	chunk := &ast.Chunk{Functions: []*ast.Function{main}}
	result := runChunk(t, chunk)
	require.Equal(t, int64(45), result.AsInt())
}

// TestGenerateGlobalInit exercises the global-initialization prelude main
// gets prefixed with: a global with an initializer must be visible, already
// stored, from the very first statement of main's own body.
func TestGenerateGlobalInit(t *testing.T) {
	counterVar := &ast.Variable{Name: "counter", Type: &i32}

	main := &ast.Function{
		Name:       "main",
		ReturnType: i32,
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.Binary{Op: ast.Add, Left: counterVar, Right: intLit(1), Type: &i32}},
		}},
	}

	chunk := &ast.Chunk{
		Globals:   []*ast.VarDecl{{Name: "counter", Type: i32, Init: intLit(41)}},
		Functions: []*ast.Function{main},
	}
	result := runChunk(t, chunk)
	require.Equal(t, int64(42), result.AsInt())
}
