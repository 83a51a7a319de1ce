package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// receive folds a receipt into p. The average is recomputed only here. A
// receipt that leaves the product at or below zero, or lands on negative
// stock, takes the receipt cost as the new average.
func receive(p Position, qty, unitCost decimal.Decimal) Position {
	newQty := p.Quantity.Add(qty)
	incoming := shared.RoundMoney(qty.Mul(unitCost))
	if p.Quantity.IsNegative() || !newQty.IsPositive() {
		return Position{
			Quantity:    newQty,
			AverageCost: shared.RoundMoney(unitCost),
			Value:       shared.RoundMoney(newQty.Mul(unitCost)),
		}
	}
	value := p.Value.Add(incoming)
	return Position{
		Quantity:    newQty,
		AverageCost: value.DivRound(newQty, shared.MoneyScale),
		Value:       value,
	}
}

// issue consumes qty at the current average, which is returned as the cost used.
func issue(p Position, qty decimal.Decimal) (Position, decimal.Decimal) {
	cost := p.AverageCost
	newQty := p.Quantity.Sub(qty)
	next := Position{
		Quantity:    newQty,
		AverageCost: cost,
		Value:       p.Value.Sub(shared.RoundMoney(qty.Mul(cost))),
	}
	if newQty.IsZero() {
		next.Value = decimal.Zero
	}
	return next, cost
}

// step applies one ledger line to p and rewrites the line's running columns.
// Issues are re-costed at the average they now see.
func step(p Position, line *LedgerLine) Position {
	var next Position
	switch line.Direction {
	case DirectionReceipt:
		next = receive(p, line.Quantity, line.UnitCost)
	default:
		next, line.UnitCost = issue(p, line.Quantity)
	}
	line.BalanceQty = next.Quantity
	line.AverageCost = next.AverageCost
	line.BalanceValue = next.Value
	return next
}

func positionOf(line LedgerLine) Position {
	return Position{Quantity: line.BalanceQty, AverageCost: line.AverageCost, Value: line.BalanceValue}
}

func zeroPosition() Position {
	return Position{Quantity: decimal.Zero, AverageCost: decimal.Zero, Value: decimal.Zero}
}
