// Package config loads the dupguard service configuration.
//
// Configuration is read from YAML or JSON files (JSON is accepted as YAML),
// layered in order, then overridden from DUPGUARD_* environment variables:
//
//	loader := config.NewLoader()
//	loader.AddLayer("dupguard.yaml")
//	loader.AddLayer("dupguard.production.yaml") // overrides the base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Later layers only replace the keys they set. Durations use Go syntax
// ("2s", "10m").
//
// Environment overrides:
//
//	DUPGUARD_NAMESPACE        namespace
//	DUPGUARD_HTTP_ADDR        http.addr
//	DUPGUARD_HTTP_FRAMEWORK   http.framework
//	DUPGUARD_STORE_TYPE       store.type
//	DUPGUARD_REDIS_ADDR       store.redis.addr
//	DUPGUARD_REDIS_PASSWORD   store.redis.password
//	DUPGUARD_NATS_URL         store.nats.url
//	DUPGUARD_NATS_TOKEN       store.nats.token
//	DUPGUARD_SQL_DSN          store.sql.dsn
//	DUPGUARD_LOG_LEVEL        log.level
//	DUPGUARD_LOG_FORMAT       log.format
package config
