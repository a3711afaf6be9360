package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ppob-wallet-ledger/internal/domain/bill"
	"github.com/ppob-wallet-ledger/internal/domain/shared"
	"github.com/ppob-wallet-ledger/internal/orchestrator"
	"github.com/ppob-wallet-ledger/internal/settlement"
)

const plnBody = `{"category":"pln","product_code":"PLN50","customer_number":"123456789"}`

func TestBillHandler_Inquiry(t *testing.T) {
	id := userIdentity()
	svc := new(MockBillService)
	svc.On("Inquiry", mock.Anything, id.UserID, "pln", "PLN50", "123456789").Return(&orchestrator.Quote{
		Provider: "alpha", Category: "pln", Total: decimal.NewFromInt(52500),
	}, nil)

	h := NewBillHandler(testLogger(), svc)
	r := setupTestRouter(id)
	r.POST("/bills/inquiry", h.Inquiry)

	rr := do(r, http.MethodPost, "/bills/inquiry", plnBody)
	assert.Equal(t, http.StatusOK, rr.Code)
	data, _ := decode(t, rr)
	assert.Equal(t, "52500", data["total"])

	rr = do(r, http.MethodPost, "/bills/inquiry", `{"category":"pln"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBillHandler_Pay(t *testing.T) {
	id := userIdentity()
	want := settlement.PayRequest{UserID: id.UserID, Category: "pln", ProductCode: "PLN50", CustomerNumber: "123456789"}

	tests := []struct {
		name     string
		payment  *bill.Payment
		err      error
		wantCode int
		wantErr  string
	}{
		{"Success", &bill.Payment{Code: "BILL-1", Status: bill.StatusSuccess}, nil, http.StatusOK, ""},
		{"Pending", &bill.Payment{Code: "BILL-2", Status: bill.StatusPending}, nil, http.StatusAccepted, ""},
		{"Declined", &bill.Payment{Code: "BILL-3", Status: bill.StatusFailed, FailureReason: "customer blocked"}, nil, http.StatusOK, ""},
		{"InsufficientBalance", nil, shared.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"NoProvider", nil, shared.ErrNoProviderAvailable, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
		{"ProviderDown", nil, &shared.ProviderError{Provider: "alpha", Err: errors.New("502 from upstream")}, http.StatusBadGateway, "PROVIDER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBillService)
			if tt.err != nil {
				svc.On("Pay", mock.Anything, want).Return(nil, tt.err)
			} else {
				svc.On("Pay", mock.Anything, want).Return(tt.payment, nil)
			}

			h := NewBillHandler(testLogger(), svc)
			r := setupTestRouter(id)
			r.POST("/bills/pay", h.Pay)

			rr := do(r, http.MethodPost, "/bills/pay", plnBody)
			assert.Equal(t, tt.wantCode, rr.Code)
			data, errBody := decode(t, rr)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errBody["code"])
			} else {
				assert.Equal(t, tt.payment.Code, data["transaction_code"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestBillHandler_Get(t *testing.T) {
	id := userIdentity()
	svc := new(MockBillService)
	svc.On("GetBill", mock.Anything, "BILL-1", &id.UserID).Return(&bill.Payment{Code: "BILL-1", UserID: id.UserID}, nil)
	svc.On("GetBill", mock.Anything, "BILL-other", &id.UserID).Return(nil, bill.ErrPaymentNotFound{Code: "BILL-other"})

	h := NewBillHandler(testLogger(), svc)
	r := setupTestRouter(id)
	r.GET("/bills/:code", h.Get)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/bills/BILL-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/bills/BILL-other", nil).Code)
}
