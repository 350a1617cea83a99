package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "devit"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAuditRefresh — сигнал «коллекция аудита изменилась, перечитайте снимок».
	// Публикует seed после записи пачки, слушает консоль обозревателя.
	RedisChanAuditRefresh = RedisNamespace + ":audit:refresh"
)
