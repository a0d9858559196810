package jobs

import (
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/callsched/core/pkg/errors"
)

// cronParser accepts six fields with seconds first plus descriptors such as
// "@every 5s" and "@daily". "?" is accepted in the day fields.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a job cron expression. A seventh year field is accepted when
// it is "*" or "?", since only those can be honored.
func ParseCron(expr string) (cron.Schedule, error) {
	normalized, err := normalizeCron(expr)
	if err != nil {
		return nil, errors.InvalidPayload(errors.CodeInvalidCronExpression, err, "invalid cron expression %q", expr)
	}
	schedule, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, errors.InvalidPayload(errors.CodeInvalidCronExpression, err, "invalid cron expression %q", expr)
	}
	return schedule, nil
}

func normalizeCron(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", errors.New("expression is empty")
	}
	if strings.HasPrefix(expr, "@") || strings.HasPrefix(expr, "CRON_TZ=") || strings.HasPrefix(expr, "TZ=") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return strings.Join(fields, " "), nil
	case 7:
		if year := fields[6]; year != "*" && year != "?" {
			return "", errors.Newf("year field %q is not supported, use * or ?", year)
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", errors.Newf("expected 6 fields (second minute hour day-of-month month day-of-week), got %d", len(fields))
	}
}
