package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const digestWorkerName = "PendingCardDigest"

// runTimeout bounds a single digest run.
const runTimeout = 2 * time.Minute

type DigestSender interface {
	SendPendingDigest(ctx context.Context) (int, error)
}

// DigestWorker mails administrators the list of cards awaiting approval on a
// cron schedule.
type DigestWorker struct {
	sender DigestSender
	cron   *cron.Cron
	log    *logrus.Logger
}

func NewDigestWorker(sender DigestSender, logger *logrus.Logger) *DigestWorker {
	return &DigestWorker{
		sender: sender,
		cron:   cron.New(cron.WithLogger(cron.PrintfLogger(logger))),
		log:    logger,
	}
}

// Start registers the job and starts the cron loop. An empty schedule leaves
// the worker disabled.
func (w *DigestWorker) Start(schedule string) error {
	if schedule == "" {
		w.log.Infof("%s disabled: no schedule configured", digestWorkerName)
		return nil
	}
	if _, err := w.cron.AddFunc(schedule, w.run); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", digestWorkerName, err)
	}
	w.cron.Start()
	w.log.Infof("%s scheduled with %q", digestWorkerName, schedule)
	return nil
}

// Stop halts the schedule; the returned context is done once a running job finishes.
func (w *DigestWorker) Stop() context.Context {
	return w.cron.Stop()
}

func (w *DigestWorker) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	n, err := w.sender.SendPendingDigest(ctx)
	if err != nil {
		w.log.Errorf("%s failed: %v", digestWorkerName, err)
		return
	}
	w.log.WithField("pending", n).Infof("%s finished", digestWorkerName)
}
