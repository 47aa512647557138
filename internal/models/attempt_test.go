package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttempt_Failed(t *testing.T) {
	tests := []struct {
		outcome AttemptOutcome
		want    bool
	}{
		{OutcomeSuccess, false},
		{OutcomeFallback, false},
		{OutcomeTransportError, true},
		{OutcomeServerError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			a := &Attempt{Outcome: tt.outcome}
			assert.Equal(t, tt.want, a.Failed())
		})
	}
}
