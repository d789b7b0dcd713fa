package model

const (
	RazorpayEventPaymentCaptured = "payment.captured"
	RazorpayEventPaymentFailed   = "payment.failed"
	RazorpayEventOrderPaid       = "order.paid"
)

type RazorpayPaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Email    string `json:"email"`
}

type RazorpayPayment struct {
	Entity RazorpayPaymentEntity `json:"entity"`
}

type RazorpayOrderEntity struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	AmountDue int64  `json:"amount_due"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
}

type RazorpayOrder struct {
	Entity RazorpayOrderEntity `json:"entity"`
}

type RazorpayPayload struct {
	Payment *RazorpayPayment `json:"payment,omitempty"`
	Order   *RazorpayOrder   `json:"order,omitempty"`
}

type RazorpayWebhook struct {
	Entity    string          `json:"entity"`
	AccountID string          `json:"account_id"`
	Event     string          `json:"event"`
	Contains  []string        `json:"contains"`
	Payload   RazorpayPayload `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}
