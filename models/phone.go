package models

// PhoneSource says which strategy produced a phone number.
type PhoneSource string

const (
	SourceDirect  PhoneSource = "direct"
	SourceAPI     PhoneSource = "api"
	SourceBrowser PhoneSource = "browser"
	SourceFailed  PhoneSource = "failed"
)

// FailReason is the terminal outcome for a listing whose phone could not be resolved.
type FailReason string

const (
	FailNoHint                  FailReason = "no_hint"
	FailAPIExhausted            FailReason = "api_exhausted"
	FailBrowserExtractionFailed FailReason = "browser_extraction_failed"
)

// PhoneNotFound is the phone value recorded for failed listings.
const PhoneNotFound = "не удалось получить"

// ResolutionRequest is built fresh for every listing and never mutated.
type ResolutionRequest struct {
	ListingID       string
	ListingURL      string
	DirectPhoneHint string
	BlockIDHint     *int64
}

// ResolutionResult is either resolved (Source set) or failed (Reason set).
type ResolutionResult struct {
	Phone     string
	RawDigits string
	Source    PhoneSource
	Method    string
	Reason    FailReason
}

func Resolved(phone, rawDigits string, source PhoneSource, method string) ResolutionResult {
	return ResolutionResult{Phone: phone, RawDigits: rawDigits, Source: source, Method: method}
}

func Failed(reason FailReason) ResolutionResult {
	return ResolutionResult{Reason: reason}
}

func (r ResolutionResult) IsResolved() bool {
	return r.Reason == "" && r.Phone != ""
}

// PhoneRecord is one entry of data.json.
type PhoneRecord struct {
	Phone             string      `json:"phone"`
	NotFormattedPhone string      `json:"notFormattedPhone"`
	Source            PhoneSource `json:"source"`
	Method            string      `json:"method,omitempty"`
	Reason            FailReason  `json:"reason,omitempty"`
}

// Record converts a result into its persisted form.
func (r ResolutionResult) Record() PhoneRecord {
	if !r.IsResolved() {
		return PhoneRecord{
			Phone:  PhoneNotFound,
			Source: SourceFailed,
			Method: "none",
			Reason: r.Reason,
		}
	}
	return PhoneRecord{
		Phone:             r.Phone,
		NotFormattedPhone: r.RawDigits,
		Source:            r.Source,
		Method:            r.Method,
	}
}

func (p PhoneRecord) Succeeded() bool {
	return p.Phone != "" && p.Phone != PhoneNotFound
}
