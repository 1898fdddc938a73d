// Package notifications stores notifications and delivers them over the
// in-app, email and SMS channels.
//
// A Store wraps a Storage backend (MemoryStorage for tests and development,
// PostgresStorage for production) and owns the lifecycle rules: ids and
// creation time are assigned on Create, and RecordDeliveryResult moves a
// notification to sent when any channel succeeded or to failed otherwise.
// Read and click timestamps are only written by MarkRead and MarkClicked.
//
// A Dispatcher fans a notification out to one Transport per channel:
//
//	store := notifications.NewStore(notifications.NewMemoryStorage())
//	hub := notifications.NewHub(16)
//	d := notifications.NewDispatcher(store, []notifications.Transport{
//		notifications.NewInAppTransport(hub),
//		notifications.NewEmailTransport(email.NewLogSender(nil)),
//	})
//
//	n, _ := store.Create(ctx, notifications.Notification{UserID: "u1", Type: "task_assigned", Title: "New task"})
//	n, _ = d.Dispatch(ctx, n)
//
// Channels without a transport are recorded as failed with ErrNoTransport.
// PostgresStorage expects the schema in Migrations to be applied with
// pg.Migrate.
package notifications
