package portal

import (
	"context"
	"fmt"
	"time"
)

const DefaultWatchInterval = 2500 * time.Millisecond

// Watch keeps the device admitted to the network. Every interval it checks
// whether the captive portal answers while the probe does not, and logs in
// when that is the case. It returns when ctx ends or when the portal refuses
// the credentials or reports the data limit as exceeded; other failures are
// reported and retried.
func (c *Connector) Watch(ctx context.Context, creds Credentials, interval time.Duration, report func(ConnectStatus, error)) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if c.Reachable(ctx) && !c.Online(ctx) {
			status, err := c.Login(ctx, creds)
			if report != nil {
				report(status, err)
			}
			switch status {
			case StatusRejected:
				return err
			case StatusLimitExceeded:
				return fmt.Errorf("connect: %s", status.Message())
			}
			if err != nil {
				c.log.WithError(err).Warn("captive portal login failed")
			}
		}
		timer.Reset(interval)
	}
}
