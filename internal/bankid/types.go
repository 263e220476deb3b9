package bankid

// Status is the vendor-reported state of one sign transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Hint codes the vendor attaches to pending and failed statuses.
const (
	HintOutstanding = "outstandingTransaction"
	HintNoClient    = "noClient"
	HintStarted     = "started"
	HintUserSign    = "userSign"
	HintCancelled   = "cancelled"
	HintExpired     = "expiredTransaction"
	HintStartFailed = "startFailed"
)

// SignResult is the outcome of starting a new sign transaction.
type SignResult struct {
	OrderRef       string `json:"orderRef"`
	AutoStartToken string `json:"autoStartToken"`
}

// CompletionUser identifies the person who completed the signing.
type CompletionUser struct {
	PersonalNumber string `json:"personalNumber"`
	Name           string `json:"name"`
	GivenName      string `json:"givenName"`
	Surname        string `json:"surname"`
}

// CompletionData is returned by the vendor when a transaction completes.
type CompletionData struct {
	User      CompletionUser `json:"user"`
	Signature string         `json:"signature,omitempty"`
}

// CollectResult is one status observation of an in-flight transaction.
type CollectResult struct {
	Status     Status          `json:"status"`
	HintCode   string          `json:"hintCode"`
	Completion *CompletionData `json:"completionData,omitempty"`
}
