package jobs

import (
	"testing"
	"time"

	"github.com/callsched/core/pkg/errors"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every second", "* * * * * *", false},
		{"question mark day of week", "0 0 12 * * ?", false},
		{"question mark day of month", "0 15 10 ? * MON-FRI", false},
		{"year wildcard", "0 0 12 * * ? *", false},
		{"year question mark", "0 0 12 * * ? ?", false},
		{"descriptor", "@every 5s", false},
		{"daily", "@daily", false},
		{"specific year", "0 0 12 * * ? 2030", true},
		{"five fields", "0 12 * * *", true},
		{"garbage", "every day", true},
		{"empty", "", true},
		{"out of range", "99 * * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil && errors.CodeOf(err) != errors.CodeInvalidCronExpression {
				t.Errorf("Expected code %s, got %s", errors.CodeInvalidCronExpression, errors.CodeOf(err))
			}
		})
	}
}

func TestParseCron_SecondsFirst(t *testing.T) {
	schedule, err := ParseCron("30 0 12 * * ?")
	if err != nil {
		t.Fatalf("ParseCron() error = %v", err)
	}

	from := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	if got := schedule.Next(from); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}
