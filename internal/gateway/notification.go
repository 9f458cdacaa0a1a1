package gateway

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var ErrMalformedNotification = errors.New("malformed gateway notification")

// Notification is the canonical evidence record extracted from a webhook
// payload. Field names vary across provider event versions; everything
// downstream of this struct works only with the canonical shape.
type Notification struct {
	Reference      string
	ExternalTxnID  string
	ReportedStatus string // canonical: SUCCESS / FAILED / PENDING
	ProviderCode   string
	Amount         int64
	Signature      string // body-carried signature, if any
	RawPayload     []byte
}

// Field name variants seen across provider event versions. First match
// wins.
var (
	referenceKeys = []string{"cpm_custom", "reference", "merchant_reference", "order_id"}
	txnIDKeys     = []string{"cpm_trans_id", "transaction_id", "txn_id"}
	statusKeys    = []string{"cpm_result", "status", "payment_status"}
	codeKeys      = []string{"cpm_error_message", "code", "result_code"}
	amountKeys    = []string{"cpm_amount", "amount"}
	signatureKeys = []string{"cpm_signature", "signature"}
)

// ParseNotification accepts either a JSON object or a form-encoded body and
// maps provider field names into the canonical evidence record. It never
// trusts the payload: the caller decides, based on signature validity,
// whether the reported status may be acted on directly.
func ParseNotification(rawBody []byte) (*Notification, error) {
	fields, err := decodeFields(rawBody)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Reference:     firstField(fields, referenceKeys),
		ExternalTxnID: firstField(fields, txnIDKeys),
		ProviderCode:  firstField(fields, codeKeys),
		Signature:     firstField(fields, signatureKeys),
		RawPayload:    rawBody,
	}
	// cpm_result carries a result code, not a status word; when no
	// dedicated code field is present it does double duty.
	rawStatus := firstField(fields, statusKeys)
	if n.ProviderCode == "" {
		n.ProviderCode = rawStatus
	}
	n.ReportedStatus = MapProviderStatus(n.ProviderCode, rawStatus)

	if amountStr := firstField(fields, amountKeys); amountStr != "" {
		if amount, err := strconv.ParseInt(amountStr, 10, 64); err == nil {
			n.Amount = amount
		}
	}

	// A notification without a reference cannot be correlated; the txn id
	// doubles as reference for providers that echo ours back.
	if n.Reference == "" {
		n.Reference = n.ExternalTxnID
	}
	if n.Reference == "" {
		return nil, ErrMalformedNotification
	}

	return n, nil
}

func decodeFields(rawBody []byte) (map[string]string, error) {
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" {
		return nil, ErrMalformedNotification
	}

	if strings.HasPrefix(trimmed, "{") {
		var generic map[string]interface{}
		if err := json.Unmarshal(rawBody, &generic); err != nil {
			return nil, ErrMalformedNotification
		}
		fields := make(map[string]string, len(generic))
		for k, v := range generic {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case float64:
				fields[k] = strconv.FormatInt(int64(val), 10)
			case bool:
				fields[k] = strconv.FormatBool(val)
			}
		}
		return fields, nil
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, ErrMalformedNotification
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields, nil
}

func firstField(fields map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
