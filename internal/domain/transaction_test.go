package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionTypeIsValid(t *testing.T) {
	valid := []TransactionType{
		TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypeTransferIn, TransactionTypeTransferOut,
		TransactionTypeLoanDisbursement, TransactionTypeLoanRepayment,
		TransactionTypeInterest, TransactionTypeDividend,
	}
	for _, tt := range valid {
		assert.True(t, tt.IsValid(), string(tt))
	}
	assert.False(t, TransactionType("chargeback").IsValid())
	assert.False(t, TransactionType("").IsValid())
}

func TestTransactionTypeSignedAmount(t *testing.T) {
	tests := []struct {
		txType TransactionType
		want   int64
	}{
		{TransactionTypeDeposit, 500},
		{TransactionTypeWithdrawal, -500},
		{TransactionTypeTransferIn, 500},
		{TransactionTypeTransferOut, -500},
		{TransactionTypeLoanDisbursement, 500},
		{TransactionTypeLoanRepayment, 500},
		{TransactionTypeInterest, 500},
		{TransactionTypeDividend, 500},
	}
	for _, tt := range tests {
		t.Run(string(tt.txType), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.txType.SignedAmount(500))
			assert.Equal(t, tt.want < 0, tt.txType.IsDebit())
		})
	}
}
