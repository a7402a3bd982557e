package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// PaymentStatusFromCallback Tests
// ============================================================================

func TestPaymentStatusFromCallback_KnownStatuses(t *testing.T) {
	cases := map[string]string{
		"APPROVED": PaymentStatusApproved,
		"DECLINED": PaymentStatusDeclined,
		"PENDING":  PaymentStatusPending,
		"ERROR":    PaymentStatusError,
		"approved": PaymentStatusApproved,
		" Error ":  PaymentStatusError,
	}
	for in, want := range cases {
		got, ok := PaymentStatusFromCallback(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
}

func TestPaymentStatusFromCallback_Unknown(t *testing.T) {
	for _, in := range []string{"", "REFUNDED", "paid"} {
		_, ok := PaymentStatusFromCallback(in)
		assert.False(t, ok, in)
	}
}

// ============================================================================
// ClassifyPayment Tests
// ============================================================================

func TestClassifyPayment_TransitionTable(t *testing.T) {
	tests := []struct {
		from, to string
		want     TransitionOutcome
	}{
		{"", PaymentStatusPending, OutcomeApplied},
		{"", PaymentStatusApproved, OutcomeApplied},
		{"", PaymentStatusDeclined, OutcomeApplied},
		{"", PaymentStatusError, OutcomeApplied},

		{PaymentStatusPending, PaymentStatusPending, OutcomeNoop},
		{PaymentStatusPending, PaymentStatusApproved, OutcomeApplied},
		{PaymentStatusPending, PaymentStatusDeclined, OutcomeApplied},
		{PaymentStatusPending, PaymentStatusError, OutcomeApplied},

		{PaymentStatusError, PaymentStatusPending, OutcomeApplied},
		{PaymentStatusError, PaymentStatusApproved, OutcomeApplied},
		{PaymentStatusError, PaymentStatusDeclined, OutcomeApplied},
		{PaymentStatusError, PaymentStatusError, OutcomeNoop},

		{PaymentStatusApproved, PaymentStatusPending, OutcomeRejected},
		{PaymentStatusApproved, PaymentStatusApproved, OutcomeNoop},
		{PaymentStatusApproved, PaymentStatusDeclined, OutcomeRejected},
		{PaymentStatusApproved, PaymentStatusError, OutcomeRejected},

		{PaymentStatusDeclined, PaymentStatusPending, OutcomeRejected},
		{PaymentStatusDeclined, PaymentStatusApproved, OutcomeRejected},
		{PaymentStatusDeclined, PaymentStatusDeclined, OutcomeNoop},
		{PaymentStatusDeclined, PaymentStatusError, OutcomeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPayment(tt.from, tt.to))
		})
	}
}

func TestPaymentPredecessors_ReturnsCopy(t *testing.T) {
	preds := PaymentPredecessors(PaymentStatusApproved)
	assert.ElementsMatch(t, []string{PaymentStatusPending, PaymentStatusError}, preds)

	preds[0] = "mutated"
	assert.NotContains(t, PaymentPredecessors(PaymentStatusApproved), "mutated")
}

func TestIsTerminalPayment(t *testing.T) {
	assert.True(t, IsTerminalPayment(PaymentStatusApproved))
	assert.True(t, IsTerminalPayment(PaymentStatusDeclined))
	assert.False(t, IsTerminalPayment(PaymentStatusPending))
	assert.False(t, IsTerminalPayment(PaymentStatusError))
}

func TestTransitionResult_Accepted(t *testing.T) {
	assert.True(t, (&TransitionResult{Outcome: OutcomeApplied}).Accepted())
	assert.True(t, (&TransitionResult{Outcome: OutcomeNoop}).Accepted())
	assert.False(t, (&TransitionResult{Outcome: OutcomeRejected}).Accepted())
	assert.True(t, (&TransitionResult{Outcome: OutcomeDuplicate, Recorded: OutcomeApplied}).Accepted())
	assert.False(t, (&TransitionResult{Outcome: OutcomeDuplicate, Recorded: OutcomeRejected}).Accepted())
}
