// Package smartnotify decides how and when a notification reaches a user.
//
// Engine.Send runs a request through explicit stages:
//
//  1. priority: a PriorityModel for the type (base score plus weighted
//     numeric or categorical factors from the request context), adjusted by
//     the user's engagement and the time of day, then mapped to a level.
//  2. timing: critical is immediate; quiet hours defer to their end; the
//     user's preferred hours and the global best hours for low priority may
//     defer further.
//  3. rate_limit: hourly and daily per-user limits, checked and persisted
//     under a per-user admission lock. Critical notifications bypass the
//     limit; others are rescheduled.
//  4. personalize and channels: urgency prefix, detail flags, and the
//     in_app/email/sms channel set.
//  5. persist: the notification is stored, then dispatched, scheduled, or
//     queued for the next digest sweep.
//
// A failure or panic in any stage falls back to a basic notification that
// is stored and delivered in-app immediately.
//
// Profiles, patterns and models live in an immutable Snapshot owned by
// State. Call State.Load at start-up and State.Refresh periodically; until
// the first load succeeds every request takes the basic path.
//
// BatchScheduler.Run must be running for deferred and digest-queued
// notifications to be delivered:
//
//	store := notifications.NewStore(storage)
//	dispatcher := notifications.NewDispatcher(store, transports)
//	state, _ := smartnotify.NewState(store, cfg)
//	_ = state.Load(ctx)
//	scheduler := smartnotify.NewBatchScheduler(store, dispatcher, smartnotify.WithBatchingWindow(cfg.BatchingWindow))
//	go scheduler.Run(ctx)
//
//	engine, _ := smartnotify.New(cfg, state, store, dispatcher, scheduler)
//	n, err := engine.Send(ctx, smartnotify.Request{
//		Type:            "assessment_due",
//		RecipientUserID: "u1",
//		Title:           "SOC2 assessment due",
//		Context:         map[string]any{"daysUntilDue": 2, "assessmentPriority": "critical"},
//	})
package smartnotify
