package config

import "strings"

const (
	sessionStoreEnvVar   = "SESSION_STORE"
	redisAddrEnvVar      = "REDIS_ADDR"
	redisPasswordEnvVar  = "REDIS_PASSWORD"
	redisKeyPrefixEnvVar = "REDIS_KEY_PREFIX"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type StoreConfig interface {
	GetSessionStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisKeyPrefix() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetSessionStore() string {
	return strings.ToLower(GetEnv(sessionStoreEnvVar, SessionStoreRedis))
}

func (Store) GetRedisAddr() string {
	return GetEnv(redisAddrEnvVar, "")
}

func (Store) GetRedisPassword() string {
	return GetEnv(redisPasswordEnvVar, "")
}

func (Store) GetRedisKeyPrefix() string {
	return GetEnv(redisKeyPrefixEnvVar, "cri:")
}
