package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/motor-insurance/api"
	"github.com/warp/motor-insurance/insurance"
)

func TestVerify_IssuedToken_RoundTrips(t *testing.T) {
	auth := api.NewAuthenticator(testSecret, "motor-insurance")
	want := insurance.Caller{CallerID: "user-7", Role: insurance.RoleCustomer, CustomerID: "cust-7"}

	tok, err := auth.IssueToken(want, time.Minute)
	require.NoError(t, err)
	got, err := auth.Verify(tok)

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVerify_ExpiredToken_Rejected(t *testing.T) {
	auth := api.NewAuthenticator(testSecret, "motor-insurance")
	tok, err := auth.IssueToken(insurance.Caller{CallerID: "admin-1", Role: insurance.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	_, err = auth.Verify(tok)

	require.Error(t, err)
	assert.Equal(t, "token has expired", err.Error())
}

func TestVerify_WrongIssuer_Rejected(t *testing.T) {
	issuer := api.NewAuthenticator(testSecret, "someone-else")
	tok, err := issuer.IssueToken(insurance.Caller{CallerID: "admin-1", Role: insurance.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	_, err = api.NewAuthenticator(testSecret, "motor-insurance").Verify(tok)

	assert.Error(t, err)
}

func TestVerify_BadClaims_Rejected(t *testing.T) {
	auth := api.NewAuthenticator(testSecret, "motor-insurance")

	tests := []struct {
		name   string
		caller insurance.Caller
		want   string
	}{
		{"customer without customer id", insurance.Caller{CallerID: "u1", Role: insurance.RoleCustomer}, "customer token has no customer_id"},
		{"unknown role", insurance.Caller{CallerID: "u1", Role: "auditor"}, "token has unknown role"},
		{"no subject", insurance.Caller{Role: insurance.RoleStaff}, "token has no subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := auth.IssueToken(tt.caller, time.Minute)
			require.NoError(t, err)

			_, err = auth.Verify(tok)

			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestVerify_Garbage_Rejected(t *testing.T) {
	auth := api.NewAuthenticator(testSecret, "motor-insurance")

	_, err := auth.Verify("not.a.jwt")

	assert.EqualError(t, err, "invalid token")
}
