package crediting

type Confirmation struct {
	ID        string `json:"confirmation_id"`
	Reference string `json:"reference"`
}

type creditRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
