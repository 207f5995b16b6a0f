package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTicker(t *testing.T) {
	cases := []struct {
		ticker string
		valid  bool
	}{
		{"AAPL", true},
		{"MSFT", true},
		{"BRK.B", true},
		{"RDS-A", true},
		{"A", true},
		{"ABCDEFGH", true},
		{"", false},
		{".AAPL", false},
		{"AAPL.", false},
		{"-AAPL", false},
		{"AAPL-", false},
		{"AA..PL", false},
		{"AA--PL", false},
		{"AA.-PL", false},
		{"TOOLONGNAME1", false},
		{"AA PL", false},
		{"AA$PL", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.valid, IsValidTicker(tc.ticker), "ticker %q", tc.ticker)
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid())
	}
	assert.False(t, Category("bogus").Valid())
	assert.False(t, Category("").Valid())
}

func TestComplexityWeights(t *testing.T) {
	assert.Equal(t, 2.0, CategoryCrypto.ComplexityWeight())
	assert.Equal(t, 1.0, CategoryFinancial.ComplexityWeight())
	assert.Equal(t, 1.2, CategorySentiment.ComplexityWeight())
	assert.Equal(t, 1.6, CategoryNews.ComplexityWeight())
}

func TestResponseAccessors(t *testing.T) {
	resp := &Response{
		Success: true,
		Data: map[string]any{
			"company":         map[string]any{"ticker": "AAPL", "companyName": "Apple Inc."},
			"data":            map[string]any{"marketCap": 1.0e12},
			"confidenceScore": 0.9,
		},
	}

	require.NotNil(t, resp.Company())
	assert.Equal(t, "AAPL", resp.Company()["ticker"])
	require.NotNil(t, resp.CategoryData())

	conf, ok := resp.Confidence()
	require.True(t, ok)
	assert.InDelta(t, 0.9, conf, 1e-9)
}

func TestResponseAccessorsMalformed(t *testing.T) {
	var nilResp *Response
	assert.Nil(t, nilResp.Company())
	assert.Nil(t, nilResp.CategoryData())

	resp := &Response{Success: true, Data: map[string]any{
		"company":         "not a map",
		"confidenceScore": "high",
	}}
	assert.Nil(t, resp.Company())

	_, ok := resp.Confidence()
	assert.False(t, ok, "string confidence must count as non-numeric")
}

func TestFailedResponse(t *testing.T) {
	resp := FailedResponse("TSLA", "timeout")
	assert.False(t, resp.Success)
	assert.Equal(t, "timeout", resp.ErrorMessage)
	assert.Equal(t, "TSLA", resp.Company()["ticker"])
}
