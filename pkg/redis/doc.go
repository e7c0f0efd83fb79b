// Package redis connects metastates to a Redis server through go-redis v9.
//
// Config is read from REDIS_* environment variables. Connect retries until
// the server answers a PING, and Healthcheck wraps a client into a check
// function for readiness endpoints. The state store itself lives in redisstore.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	store := redisstore.New(client, redisstore.WithPrefix(cfg.KeyPrefix))
package redis
