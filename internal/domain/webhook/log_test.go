package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_Acknowledged(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomeProcessed, true},
		{OutcomeDuplicate, true},
		{OutcomeNotFound, true},
		{OutcomeReceived, false},
		{OutcomeRejected, false},
		{OutcomeFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.Acknowledged())
		})
	}
}
