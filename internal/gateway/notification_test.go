package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNotificationJSON(t *testing.T) {
	raw := []byte(`{
		"cpm_trans_id": "TXN-42",
		"cpm_custom": "PMT20250901000012345678",
		"cpm_result": "00",
		"cpm_amount": "1000",
		"cpm_signature": "abc123"
	}`)

	n, err := ParseNotification(raw)
	require.NoError(t, err)
	require.Equal(t, "PMT20250901000012345678", n.Reference)
	require.Equal(t, "TXN-42", n.ExternalTxnID)
	require.Equal(t, StatusSuccess, n.ReportedStatus)
	require.Equal(t, int64(1000), n.Amount)
	require.Equal(t, "abc123", n.Signature)
	require.Equal(t, raw, n.RawPayload)
}

func TestParseNotificationGenericFieldNames(t *testing.T) {
	raw := []byte(`{"transaction_id":"TXN-7","reference":"PMT1","status":"REFUSED","amount":2500}`)

	n, err := ParseNotification(raw)
	require.NoError(t, err)
	require.Equal(t, "PMT1", n.Reference)
	require.Equal(t, "TXN-7", n.ExternalTxnID)
	require.Equal(t, StatusFailed, n.ReportedStatus)
	require.Equal(t, int64(2500), n.Amount)
}

func TestParseNotificationForm(t *testing.T) {
	raw := []byte("cpm_trans_id=TXN-9&cpm_result=PENDING&cpm_amount=500&cpm_custom=PMT2")

	n, err := ParseNotification(raw)
	require.NoError(t, err)
	require.Equal(t, "PMT2", n.Reference)
	require.Equal(t, StatusPending, n.ReportedStatus)
	require.Equal(t, int64(500), n.Amount)
}

func TestParseNotificationReferenceFallsBackToTxnID(t *testing.T) {
	n, err := ParseNotification([]byte(`{"transaction_id":"PMT-ECHOED","status":"ACCEPTED"}`))
	require.NoError(t, err)
	require.Equal(t, "PMT-ECHOED", n.Reference)
	require.Equal(t, StatusSuccess, n.ReportedStatus)
}

func TestParseNotificationMalformed(t *testing.T) {
	for _, raw := range [][]byte{
		nil,
		[]byte("   "),
		[]byte("{not json"),
		[]byte(`{"status":"ACCEPTED"}`), // no reference at all
	} {
		_, err := ParseNotification(raw)
		require.ErrorIs(t, err, ErrMalformedNotification, "payload %q", raw)
	}
}

func TestMapProviderStatus(t *testing.T) {
	require.Equal(t, StatusSuccess, MapProviderStatus("", "ACCEPTED"))
	require.Equal(t, StatusSuccess, MapProviderStatus("00", ""))
	require.Equal(t, StatusFailed, MapProviderStatus("", "REFUSED"))
	require.Equal(t, StatusFailed, MapProviderStatus("600", ""))
	require.Equal(t, StatusPending, MapProviderStatus("", "WAITING_FOR_CUSTOMER"))
	// Anything unrecognized is ambiguous, never a failure.
	require.Equal(t, StatusPending, MapProviderStatus("???", "SOMETHING_NEW"))
}
