package paydb

// Key schema of the payment database.
var (
	paymentPrefix = []byte("pay-") // paymentPrefix + subtask id -> json payment record
)

func paymentKey(subtaskID string) []byte {
	return append(append([]byte{}, paymentPrefix...), subtaskID...)
}
