// Package redis connects to Redis with github.com/redis/go-redis/v9.
//
// The notification engine uses Redis for two things: the cross-process
// per-user admission lock (smartnotify.RedisLocker) and realtime in-app
// fan-out over Pub/Sub (notifications.RedisPublisher).
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
