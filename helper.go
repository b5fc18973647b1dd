package match

import "github.com/shopspring/decimal"

// DepthChange is the liquidity delta one book event implies at one price
// level, for consumers rebuilding depth from the event feed.
type DepthChange struct {
	Side     Side
	Price    decimal.Decimal
	SizeDiff decimal.Decimal
}

// CalculateDepthChange maps a book event to the depth delta it implies.
// For match events the side returned is the maker's side, since a match
// consumes resting liquidity on the opposite side of the taker.
func CalculateDepthChange(log *BookLog) DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size,
		}
	case LogTypeCancel:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size.Neg(),
		}
	case LogTypeMatch:
		return DepthChange{
			Side:     log.Side.Opposite(),
			Price:    log.Price,
			SizeDiff: log.Size.Neg(),
		}
	case LogTypeAmend:
		// A priority-losing amend removes the order from the book; the
		// re-entry shows up as a subsequent open or match event.
		if log.Priority == PriorityLost {
			return DepthChange{
				Side:     log.Side,
				Price:    log.OldPrice,
				SizeDiff: log.OldSize.Neg(),
			}
		}
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size.Sub(log.OldSize),
		}
	case LogTypeReject:
		// Rejected orders never entered the book.
		return DepthChange{}
	}

	return DepthChange{}
}
