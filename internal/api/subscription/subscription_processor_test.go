package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v79"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
)

func TestProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"processor message kept", &stripe.Error{Msg: "Your card was declined."}, "Your card was declined."},
		{"processor message sanitized", &stripe.Error{Msg: "No such price: see https://dashboard.stripe.com/prices"}, "No such price: see [redacted]"},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), "the payment provider did not respond in time"},
		{"other", errors.New("dial tcp 10.1.2.3:443: refused"), "the payment provider rejected the request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := providerError(tt.err)
			assert.ErrorIs(t, err, api.ErrPaymentProvider)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want, api.PublicMessage(err))
			assert.Equal(t, 502, api.StatusFromError(err))
		})
	}
}

func TestEscapeSearchValue(t *testing.T) {
	assert.Equal(t, "alice@example.com", escapeSearchValue("alice@example.com"))
	assert.Equal(t, `o\'brien@example.com`, escapeSearchValue("o'brien@example.com"))
	assert.Equal(t, `a\\b`, escapeSearchValue(`a\b`))
}

func TestUnixTime(t *testing.T) {
	assert.Nil(t, unixTime(0))
	got := unixTime(1_700_000_000)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(1_700_000_000), got.Unix())
	}
}
