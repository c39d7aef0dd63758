package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ABCDE-12345-FGHIJ-67890-KLMNO"

func TestValidateVerifyRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     VerifyRequest
		wantTag string
		field   string
	}{
		{name: "minimal", req: VerifyRequest{LicenseKey: testKey}},
		{name: "missing key", req: VerifyRequest{}, wantTag: "required", field: "licenseKey"},
		{name: "lowercase key", req: VerifyRequest{LicenseKey: strings.ToLower(testKey)}, wantTag: "licensekey", field: "licenseKey"},
		{name: "short group", req: VerifyRequest{LicenseKey: "ABCD-12345-FGHIJ-67890-KLMNO"}, wantTag: "licensekey", field: "licenseKey"},
		{name: "bad customer", req: VerifyRequest{LicenseKey: testKey, CustomerID: "nope"}, wantTag: "uuid", field: "customerId"},
		{name: "challenge with space", req: VerifyRequest{LicenseKey: testKey, Challenge: "a b"}, wantTag: "nowhitespace", field: "challenge"},
		{name: "challenge too long", req: VerifyRequest{LicenseKey: testKey, Challenge: strings.Repeat("x", 1001)}, wantTag: "max", field: "challenge"},
		{name: "version too short", req: VerifyRequest{LicenseKey: testKey, Version: "1."}, wantTag: "min", field: "version"},
		{name: "device too short", req: VerifyRequest{LicenseKey: testKey, DeviceIdentifier: "abc"}, wantTag: "min", field: "deviceIdentifier"},
		{name: "full", req: VerifyRequest{
			LicenseKey:       testKey,
			CustomerID:       "5b8f3f3e-3f7a-4b7a-9d55-2f1c3d9b8a11",
			ProductID:        "7c0d1a52-9a0e-4f8b-8a4e-6b7f2e9c1d22",
			Challenge:        "nonce-123",
			Version:          "1.0.0",
			DeviceIdentifier: "device-0123456789",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.req)
			if tt.wantTag == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantTag, errs[0].Tag)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.NotEmpty(t, errs[0].Message)
		})
	}
}

func TestValidateDownloadRequest(t *testing.T) {
	req := DownloadRequest{LicenseKey: testKey}
	errs := Validate(req)

	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Tag
	}
	assert.Equal(t, "required", fields["productId"])
	assert.Equal(t, "required", fields["sessionKey"])

	req.ProductID = "7c0d1a52-9a0e-4f8b-8a4e-6b7f2e9c1d22"
	req.SessionKey = "zz"
	errs = Validate(req)
	require.Len(t, errs, 1)
	assert.Equal(t, "hexadecimal", errs[0].Tag)

	req.SessionKey = "0a1b2c"
	assert.Empty(t, Validate(req))
	assert.Equal(t, req.ProductID, req.VerifyRequest().ProductID)
}
