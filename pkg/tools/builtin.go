package tools

import (
	"context"
	"time"
)

// CurrentTimeArgs are the arguments of the built-in current_time tool.
type CurrentTimeArgs struct {
	// Timezone is an IANA zone name, e.g. "Europe/Prague". Defaults to UTC.
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name; defaults to UTC"`
}

// CurrentTime returns the built-in clock tool. It doubles as a smoke-test
// target for the tool sub-loop.
func CurrentTime() Tool {
	return New("current_time", "Returns the current date and time.",
		func(_ context.Context, args CurrentTimeArgs) (any, error) {
			loc := time.UTC
			if args.Timezone != "" {
				l, err := time.LoadLocation(args.Timezone)
				if err != nil {
					return nil, err
				}
				loc = l
			}
			now := time.Now().In(loc)
			return map[string]string{
				"time":     now.Format(time.RFC3339),
				"timezone": loc.String(),
			}, nil
		})
}
