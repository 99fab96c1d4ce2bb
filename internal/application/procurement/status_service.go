package procurement

import (
	"github.com/manavault/backend/internal/domain/procurement"
)

// PurchaseOrderStatusService derives the overall order status from its sub-orders.
// failed beats processing beats completed. The result does not depend on ordering.
type PurchaseOrderStatusService struct{}

// NewPurchaseOrderStatusService creates a new PurchaseOrderStatusService
func NewPurchaseOrderStatusService() *PurchaseOrderStatusService {
	return &PurchaseOrderStatusService{}
}

// ComputeStatus aggregates sub-order statuses. An empty set is completed.
func (s *PurchaseOrderStatusService) ComputeStatus(statuses []procurement.SupplierOrderStatus) procurement.OrderStatus {
	processing := false
	for _, st := range statuses {
		switch st {
		case procurement.SupplierOrderStatusFailed:
			return procurement.OrderStatusFailed
		case procurement.SupplierOrderStatusProcessing:
			processing = true
		}
	}
	if processing {
		return procurement.OrderStatusProcessing
	}
	return procurement.OrderStatusCompleted
}

// ComputeForSubOrders is ComputeStatus over sub-order rows
func (s *PurchaseOrderStatusService) ComputeForSubOrders(subOrders []procurement.PurchaseOrderSupplier) procurement.OrderStatus {
	statuses := make([]procurement.SupplierOrderStatus, len(subOrders))
	for i, sub := range subOrders {
		statuses[i] = sub.Status
	}
	return s.ComputeStatus(statuses)
}
