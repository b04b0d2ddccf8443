package orders

import (
	"context"

	"github.com/odyssey-erp/odyssey-sales/internal/sales/quotations"
)

type quotationConverter struct {
	svc *Service
}

// QuotationConverter adapts the service to the quotations.OrderCreator port.
func QuotationConverter(svc *Service) quotations.OrderCreator {
	return quotationConverter{svc: svc}
}

func (c quotationConverter) CreateOrderFromQuotation(ctx context.Context, quotationID, actor string) (quotations.ConvertedOrder, error) {
	o, err := c.svc.CreateOrderFromQuotation(ctx, quotationID, actor)
	if err != nil {
		return quotations.ConvertedOrder{}, err
	}
	return quotations.ConvertedOrder{OrderID: o.ID, OrderNumber: o.Number, QuotationID: o.QuotationID}, nil
}
