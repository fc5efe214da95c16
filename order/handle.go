package order

import "fmt"

type (
	GridID      uint32
	OrderID     uint32
	OrderHandle uint64
)

// AskFlag 标记ask域的订单号，ask与bid计数器互不相交
const AskFlag OrderID = 0x80000000

// NewHandle packs gridID into the high half and orderID into the low half.
func NewHandle(gridID GridID, orderID OrderID) OrderHandle {
	return OrderHandle(uint64(gridID)<<32 | uint64(orderID))
}

func (h OrderHandle) GridID() GridID   { return GridID(h >> 32) }
func (h OrderHandle) OrderID() OrderID { return OrderID(uint32(h)) }
func (h OrderHandle) IsAsk() bool      { return h.OrderID().IsAsk() }

func (h OrderHandle) String() string {
	return fmt.Sprintf("%d/%s", h.GridID(), h.OrderID())
}

func (o OrderID) IsAsk() bool { return o&AskFlag != 0 }

func (o OrderID) String() string {
	if o.IsAsk() {
		return fmt.Sprintf("ask#%d", uint32(o&^AskFlag))
	}
	return fmt.Sprintf("bid#%d", uint32(o))
}
