package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceOrderRejectsInvalidRequests(t *testing.T) {
	svc := NewOrderService(nil, nil, nil)

	cases := map[string]*PlaceOrderRequest{
		"zero amount":     {MemberID: 1, Amount: 0},
		"negative amount": {MemberID: 1, Amount: -500},
		"missing member":  {MemberID: 0, Amount: 1000},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := svc.PlaceOrder(context.Background(), req)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
