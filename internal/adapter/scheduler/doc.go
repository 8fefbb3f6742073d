// Package scheduler runs the periodic probe checks on robfig/cron.
//
// Each job gets a name, an optional timeout and an overlap policy; a check
// that is still waiting on retries when its next tick fires is skipped rather
// than stacked. Jobs can also be fired immediately with RunNow, which the
// service does once at startup so the journal is never empty for a full
// interval.
//
//	s := scheduler.New(scheduler.Config{Logger: log})
//	_, err := s.AddCronJobWithOptions("@every 1m", check, scheduler.JobOptions{
//		Name:          "probe:users",
//		Timeout:       30 * time.Second,
//		OverlapPolicy: scheduler.SkipIfRunning,
//	})
//	s.Start()
//	defer s.Stop()
package scheduler
