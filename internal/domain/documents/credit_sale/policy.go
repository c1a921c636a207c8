package credit_sale

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

// PricePolicy decides whether a line price is acceptable. The expression sees
// unit_price, price_floor, sale_price, unit_cost and quantity as doubles and
// must evaluate to a bool.
type PricePolicy struct {
	expr string
	prg  cel.Program
}

// NewPricePolicy compiles expr.
func NewPricePolicy(expr string) (*PricePolicy, error) {
	if expr == "" {
		expr = DefaultPricePolicy
	}
	env, err := cel.NewEnv(
		cel.Variable("unit_price", cel.DoubleType),
		cel.Variable("price_floor", cel.DoubleType),
		cel.Variable("sale_price", cel.DoubleType),
		cel.Variable("unit_cost", cel.DoubleType),
		cel.Variable("quantity", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("price policy env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile price policy %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("price policy %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("price policy program: %w", err)
	}
	return &PricePolicy{expr: expr, prg: prg}, nil
}

// Expression returns the source expression.
func (p *PricePolicy) Expression() string { return p.expr }

// Check evaluates the policy for one line.
func (p *PricePolicy) Check(product *ledger.Product, unitPrice types.Money, qty types.Quantity) error {
	out, _, err := p.prg.Eval(map[string]any{
		"unit_price":  unitPrice.InexactFloat64(),
		"price_floor": product.PriceFloor.InexactFloat64(),
		"sale_price":  product.SalePrice.InexactFloat64(),
		"unit_cost":   product.UnitCost.InexactFloat64(),
		"quantity":    qty.Float64(),
	})
	if err != nil {
		return fmt.Errorf("evaluate price policy: %w", err)
	}
	if ok, _ := out.Value().(bool); ok {
		return nil
	}
	return apperror.NewBusinessRule(apperror.CodePriceBelowFloor, "unit price rejected by price policy").
		WithDetail("productId", product.ID.String()).
		WithDetail("unitPrice", unitPrice.String()).
		WithDetail("priceFloor", product.PriceFloor.String()).
		WithDetail("policy", p.expr)
}
